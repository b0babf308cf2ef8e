package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KernelSpec identifies the kernel a notebook runs on.
type KernelSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

type cell struct {
	CellType       string          `json:"cell_type"`
	Source         json.RawMessage `json:"source"`
	ExecutionCount *int            `json:"execution_count"`
	Outputs        []cellOutput    `json:"outputs"`
}

type cellOutput struct {
	OutputType string          `json:"output_type"`
	Ename      string          `json:"ename"`
	Evalue     string          `json:"evalue"`
	Traceback  json.RawMessage `json:"traceback"`
}

type notebookDoc struct {
	Cells []cell `json:"cells"`
}

// CellCount returns the number of cells in the notebook JSON, 0 when the
// content is absent or malformed.
func CellCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	var doc notebookDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		return 0
	}
	return len(doc.Cells)
}

// CurrentCell returns the code and index of the most recently executed code
// cell (highest execution count), falling back to the last code cell when
// nothing has executed yet.
func CurrentCell(content []byte) (code string, index int, ok bool) {
	var doc notebookDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		return "", 0, false
	}

	best := -1
	bestCount := -1
	lastCode := -1
	for i, c := range doc.Cells {
		if c.CellType != "code" {
			continue
		}
		lastCode = i
		if c.ExecutionCount != nil && *c.ExecutionCount > bestCount {
			bestCount = *c.ExecutionCount
			best = i
		}
	}
	if best < 0 {
		best = lastCode
	}
	if best < 0 {
		return "", 0, false
	}
	return sourceString(doc.Cells[best].Source), best, true
}

// ErrorOutput returns the first error output in the notebook formatted as
// "ename: evalue", or nil when no cell errored.
func ErrorOutput(content []byte) *string {
	var doc notebookDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil
	}
	for _, c := range doc.Cells {
		for _, out := range c.Outputs {
			if out.OutputType != "error" {
				continue
			}
			msg := out.Ename
			if out.Evalue != "" {
				if msg != "" {
					msg += ": "
				}
				msg += out.Evalue
			}
			if msg == "" {
				msg = "unknown error"
			}
			return &msg
		}
	}
	return nil
}

// AnnotateKernelSpec sets metadata.kernelspec on the notebook JSON, leaving
// every other field untouched.
func AnnotateKernelSpec(content []byte, spec KernelSpec) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse notebook: %w", err)
	}

	var metadata map[string]json.RawMessage
	if raw, ok := doc["metadata"]; ok {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, fmt.Errorf("parse notebook metadata: %w", err)
		}
	}
	if metadata == nil {
		metadata = make(map[string]json.RawMessage)
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	metadata["kernelspec"] = specJSON

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	doc["metadata"] = metaJSON
	return json.Marshal(doc)
}

// sourceString flattens a notebook source field, which is either a string or
// a list of lines.
func sourceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}
