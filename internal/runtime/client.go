// Package runtime drives the external notebook runtime (contents, sessions,
// kernels) through a narrow capability interface. The bridge never depends on
// the runtime's full surface, only on these operations.
package runtime

import (
	"context"

	"github.com/notebridge/backend/internal/notebook"
)

// DocumentInfo describes one persisted entry in the runtime's content store.
type DocumentInfo struct {
	Path string `json:"path"`
	Type string `json:"type"` // "notebook", "directory", "file"
}

// SessionInfo describes one open document view bound to a kernel.
type SessionInfo struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	KernelID string `json:"kernel_id"`
}

// KernelInfo describes one live kernel.
type KernelInfo struct {
	ID string `json:"id"`
}

// Presentation is the view chrome applied to the canonical document.
type Presentation struct {
	Title      string `json:"title"`
	AutoRename bool   `json:"auto_rename"`
	HideChrome bool   `json:"hide_chrome"`
}

// Status reports runtime reachability for diagnostics.
type Status struct {
	Reachable bool
	Starting  bool
	Version   string
	Message   string
}

// Client is the capability surface the bridge drives. All operations honor the
// passed context; implementations own their retry and breaker policies.
type Client interface {
	// Content store
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	LoadDocument(ctx context.Context, path string) ([]byte, error)
	SaveDocument(ctx context.Context, path string, content []byte) error
	DeleteDocument(ctx context.Context, path string) error

	// Document views
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	OpenSession(ctx context.Context, path string) (SessionInfo, error)
	CloseSession(ctx context.Context, id string) error

	// Live kernels
	ListKernels(ctx context.Context) ([]KernelInfo, error)
	ShutdownKernel(ctx context.Context, id string) error
	Execute(ctx context.Context, kernelID, code string, silent bool) error

	// Event stream
	Events(ctx context.Context) (<-chan Event, error)

	// Workspace affordances
	ClearRecents(ctx context.Context) error
	ApplyPresentation(ctx context.Context, p Presentation) error
	KernelSpec(ctx context.Context) (*notebook.KernelSpec, error)
	Status(ctx context.Context) Status
}
