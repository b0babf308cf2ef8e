package notebook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNotebook = `{
	"cells": [
		{"cell_type": "markdown", "source": "# Title"},
		{"cell_type": "code", "execution_count": 2, "source": ["import os\n", "print(os.getcwd())"], "outputs": []},
		{"cell_type": "code", "execution_count": 5, "source": "x = 1/0", "outputs": [
			{"output_type": "error", "ename": "ZeroDivisionError", "evalue": "division by zero"}
		]},
		{"cell_type": "code", "execution_count": null, "source": "pass", "outputs": []}
	],
	"metadata": {"language_info": {"name": "python"}},
	"nbformat": 4
}`

func TestCellCount(t *testing.T) {
	assert.Equal(t, 4, CellCount([]byte(sampleNotebook)))
	assert.Equal(t, 0, CellCount(nil))
	assert.Equal(t, 0, CellCount([]byte("not json")))
	assert.Equal(t, 0, CellCount([]byte(`{"cells": []}`)))
}

func TestCurrentCell_HighestExecutionCount(t *testing.T) {
	code, index, ok := CurrentCell([]byte(sampleNotebook))
	require.True(t, ok)
	assert.Equal(t, 2, index)
	assert.Equal(t, "x = 1/0", code)
}

func TestCurrentCell_FallsBackToLastCodeCell(t *testing.T) {
	nb := `{"cells": [
		{"cell_type": "markdown", "source": "intro"},
		{"cell_type": "code", "execution_count": null, "source": "a = 1"},
		{"cell_type": "code", "execution_count": null, "source": ["b = 2"]},
		{"cell_type": "markdown", "source": "outro"}
	]}`
	code, index, ok := CurrentCell([]byte(nb))
	require.True(t, ok)
	assert.Equal(t, 2, index)
	assert.Equal(t, "b = 2", code)
}

func TestCurrentCell_NoCodeCells(t *testing.T) {
	_, _, ok := CurrentCell([]byte(`{"cells": [{"cell_type": "markdown", "source": "hi"}]}`))
	assert.False(t, ok)
}

func TestErrorOutput(t *testing.T) {
	out := ErrorOutput([]byte(sampleNotebook))
	require.NotNil(t, out)
	assert.Equal(t, "ZeroDivisionError: division by zero", *out)
}

func TestErrorOutput_NoneWhenClean(t *testing.T) {
	nb := `{"cells": [{"cell_type": "code", "source": "pass", "outputs": [
		{"output_type": "stream", "text": "ok"}
	]}]}`
	assert.Nil(t, ErrorOutput([]byte(nb)))
	assert.Nil(t, ErrorOutput([]byte("garbage")))
}

func TestErrorOutput_EnameOnly(t *testing.T) {
	nb := `{"cells": [{"cell_type": "code", "source": "", "outputs": [
		{"output_type": "error", "ename": "KeyboardInterrupt", "evalue": ""}
	]}]}`
	out := ErrorOutput([]byte(nb))
	require.NotNil(t, out)
	assert.Equal(t, "KeyboardInterrupt", *out)
}

func TestAnnotateKernelSpec(t *testing.T) {
	annotated, err := AnnotateKernelSpec([]byte(sampleNotebook), KernelSpec{
		Name:        "python3",
		DisplayName: "Python 3",
		Language:    "python",
	})
	require.NoError(t, err)

	var doc struct {
		Cells    []json.RawMessage `json:"cells"`
		Metadata struct {
			KernelSpec   KernelSpec      `json:"kernelspec"`
			LanguageInfo json.RawMessage `json:"language_info"`
		} `json:"metadata"`
		NBFormat int `json:"nbformat"`
	}
	require.NoError(t, json.Unmarshal(annotated, &doc))

	assert.Equal(t, "python3", doc.Metadata.KernelSpec.Name)
	// Everything else survives untouched.
	assert.Len(t, doc.Cells, 4)
	assert.NotEmpty(t, doc.Metadata.LanguageInfo)
	assert.Equal(t, 4, doc.NBFormat)
}

func TestAnnotateKernelSpec_MissingMetadata(t *testing.T) {
	annotated, err := AnnotateKernelSpec([]byte(`{"cells": []}`), KernelSpec{Name: "python3"})
	require.NoError(t, err)
	assert.Contains(t, string(annotated), "kernelspec")

	_, err = AnnotateKernelSpec([]byte("nope"), KernelSpec{})
	assert.Error(t, err)
}
