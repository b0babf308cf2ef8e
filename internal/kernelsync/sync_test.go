package kernelsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

type recordingExecutor struct {
	mu       sync.Mutex
	programs []string
	silent   []bool
	failAll  bool
}

func (r *recordingExecutor) Execute(ctx context.Context, kernelID, code string, silent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs = append(r.programs, code)
	r.silent = append(r.silent, silent)
	if r.failAll {
		return fmt.Errorf("execution failed")
	}
	return nil
}

func syncDoc() *notebook.Document {
	doc := notebook.NewDocument("k", "")
	doc.Load([]byte(`{"cells": []}`))
	return doc
}

func testSpec() Spec {
	return Spec{
		Token:       1,
		ImportPaths: []string{"/", "/workspace/k-abc"},
		Files: []RuntimeFile{
			{Path: "/workspace/k-abc/util.py", ContentBase64: "cHJpbnQoMSk="},
			{Path: "/workspace/k-abc/data/input.csv", ContentBase64: "YSxi"},
		},
	}
}

func TestSync_FilesBeforePaths(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, logging.NewNop())
	doc := syncDoc()

	require.NoError(t, s.Sync(context.Background(), doc, "kernel-1", testSpec()))
	require.Len(t, exec.programs, 3)

	// File programs first, in manifest order; path program last.
	assert.Contains(t, exec.programs[0], "util.py")
	assert.Contains(t, exec.programs[0], "b64decode")
	assert.Contains(t, exec.programs[1], "input.csv")
	assert.Contains(t, exec.programs[2], "sys.path.insert")

	for _, silent := range exec.silent {
		assert.True(t, silent, "bootstrap programs must not pollute execution history")
	}
	assert.EqualValues(t, 1, doc.SyncedToken())
}

func TestSync_TokenIdempotence(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, logging.NewNop())
	doc := syncDoc()
	spec := testSpec()

	var runs, skips int
	s.SetObservers(func() { runs++ }, func() { skips++ })

	require.NoError(t, s.Sync(context.Background(), doc, "kernel-1", spec))
	first := len(exec.programs)

	// Same token again: kernel restart without a new load.
	require.NoError(t, s.Sync(context.Background(), doc, "kernel-2", spec))
	assert.Equal(t, first, len(exec.programs), "unchanged token must not re-inject")
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, skips)

	// New generation re-injects.
	spec.Token = 2
	require.NoError(t, s.Sync(context.Background(), doc, "kernel-2", spec))
	assert.Greater(t, len(exec.programs), first)
	assert.Equal(t, 2, runs)
}

func TestSync_NoKernelIsNoop(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, logging.NewNop())
	doc := syncDoc()

	require.NoError(t, s.Sync(context.Background(), doc, "", testSpec()))
	assert.Empty(t, exec.programs)
	assert.Zero(t, doc.SyncedToken(), "skipped sync must not consume the token")
}

func TestSync_EmptySpecIsNoop(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, logging.NewNop())

	require.NoError(t, s.Sync(context.Background(), syncDoc(), "kernel-1", Spec{Token: 5}))
	assert.Empty(t, exec.programs)
}

func TestSync_DisposedDocumentIsNoop(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, logging.NewNop())
	doc := syncDoc()
	doc.Dispose()

	require.NoError(t, s.Sync(context.Background(), doc, "kernel-1", testSpec()))
	assert.Empty(t, exec.programs)
}

func TestSync_ExecutionFailuresDoNotAbort(t *testing.T) {
	exec := &recordingExecutor{failAll: true}
	s := New(exec, logging.NewNop())
	doc := syncDoc()

	require.NoError(t, s.Sync(context.Background(), doc, "kernel-1", testSpec()))
	// Every program was still attempted.
	assert.Len(t, exec.programs, 3)
	// The generation is consumed even on failure: retries come from new tokens.
	assert.EqualValues(t, 1, doc.SyncedToken())
}

func TestPathProgram_WorkdirSelection(t *testing.T) {
	two := pathProgram([]string{"/", "/workspace/nb-12345678"})
	assert.Contains(t, two, `os.chdir(_targets[1])`)
	assert.Contains(t, two, "makedirs")
	assert.Contains(t, two, "sys.path.insert(0, _p)")

	one := pathProgram([]string{"/only"})
	assert.Contains(t, one, "os.chdir(_targets[0])")
}

func TestFileProgram_QuotesHostilePaths(t *testing.T) {
	p := fileProgram(`/ws/we"ird\name.py`, "YQ==")
	// The quoted literal must not break out of the string.
	assert.Contains(t, p, `\"`)
	assert.Contains(t, p, `\\`)
	assert.True(t, strings.HasPrefix(p, "import base64, os"))
}
