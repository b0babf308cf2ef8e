// Package utils holds small shared validation helpers.
package utils

import (
	"encoding/json"
	"fmt"
)

// Frame size limits (in bytes). Notebook payloads carry embedded outputs, so
// the command frame limit is generous; the manifest entry limit is not.
const (
	MaxFrameSize         = 64 * 1024 * 1024 // 64MB - maximum command frame size
	MaxWorkspaceFileSize = 8 * 1024 * 1024  // 8MB - single workspace file (base64)
)

// FrameValidator validates inbound command frames.
type FrameValidator struct {
	maxSize int
}

// NewFrameValidator creates a validator with the given max size.
func NewFrameValidator(maxSize int) *FrameValidator {
	return &FrameValidator{maxSize: maxSize}
}

// DefaultFrameValidator returns a validator with the default frame limit.
func DefaultFrameValidator() *FrameValidator {
	return NewFrameValidator(MaxFrameSize)
}

// ValidateSize checks if the frame size is within limits.
func (v *FrameValidator) ValidateSize(data []byte) error {
	if len(data) > v.maxSize {
		return fmt.Errorf("frame size %d bytes exceeds maximum %d bytes", len(data), v.maxSize)
	}
	return nil
}

// ValidateFrame validates both size and JSON structure.
func (v *FrameValidator) ValidateFrame(data []byte) error {
	// Size first, cheaper than parsing.
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("frame is not valid JSON")
	}
	return nil
}
