package notebook

import (
	"path"
	"strings"
)

// WorkspaceFile is one entry of the host-provided shared file manifest.
type WorkspaceFile struct {
	RelativePath  string `json:"relative_path"`
	ContentBase64 string `json:"content_base64"`
	ContentType   string `json:"content_type,omitempty"`
}

// SanitizeManifest drops entries whose relative path would escape the
// workspace root. Surviving paths are cleaned.
func SanitizeManifest(files []WorkspaceFile) []WorkspaceFile {
	out := make([]WorkspaceFile, 0, len(files))
	for _, f := range files {
		cleaned, ok := safeRelPath(f.RelativePath)
		if !ok {
			continue
		}
		f.RelativePath = cleaned
		out = append(out, f)
	}
	return out
}

// safeRelPath cleans p and rejects anything that is absolute, empty, or
// resolves above its root.
func safeRelPath(p string) (string, bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
