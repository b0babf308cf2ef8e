package notebook

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const maxStemLength = 40

// ToPath derives the storage path for a logical notebook key. The derivation
// is deterministic: the key is stripped to [a-zA-Z0-9_-], truncated, and
// suffixed with a short non-cryptographic hash of the original key so distinct
// keys are extremely unlikely to collide while the same key always maps to the
// same path.
func ToPath(key string) string {
	return PathStem(key) + ".ipynb"
}

// PathStem returns the path without the notebook extension. Workspace
// directories for a notebook are named after the same stem.
func PathStem(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	stem := b.String()
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	if stem == "" {
		stem = "notebook"
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	return fmt.Sprintf("%s-%08x", stem, h.Sum32())
}

// WorkspaceDir returns the kernel-side workspace directory for a notebook key.
func WorkspaceDir(root, key string) string {
	return strings.TrimRight(root, "/") + "/" + PathStem(key)
}
