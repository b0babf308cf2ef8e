package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/kernelsync"
	"github.com/notebridge/backend/internal/notebook"
	"github.com/notebridge/backend/internal/protocol"
)

type loadRequest struct {
	NotebookJSON   json.RawMessage          `json:"notebook_json"`
	NotebookKey    string                   `json:"notebook_key"`
	NotebookTitle  string                   `json:"notebook_title"`
	WorkspaceFiles []notebook.WorkspaceFile `json:"workspace_files"`
}

func (b *Bridge) handlePing(ctx context.Context, env protocol.Envelope) (any, error) {
	return map[string]any{"ok": true}, nil
}

// handleLoadNotebook is the heavyweight path: isolate the workspace around the
// requested document, activate it, persist the initial content, and push the
// runtime sync state into the attached kernel.
func (b *Bridge) handleLoadNotebook(ctx context.Context, env protocol.Envelope) (any, error) {
	var req loadRequest
	if err := env.DecodePayload(&req); err != nil {
		return nil, fmt.Errorf("invalid load payload: %w", err)
	}
	if len(req.NotebookJSON) == 0 {
		return nil, fmt.Errorf("load requires notebook_json")
	}
	if req.NotebookKey == "" {
		return nil, fmt.Errorf("load requires notebook_key")
	}

	doc := notebook.NewDocument(req.NotebookKey, req.NotebookTitle)
	doc.Load(req.NotebookJSON)

	session, err := b.isolation.EnforceSingleDocument(ctx, doc.Path, req.NotebookTitle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.diagnose(ctx), err)
	}

	if prev := b.tracker.Active(); prev != nil && prev != doc {
		b.disposeActive(prev)
	}
	b.tracker.SetActive(doc)
	b.subscribeActive(doc)

	if err := b.saveIfSaveable(ctx, doc); err != nil {
		b.log.Warn("initial persist failed", zap.String("path", doc.Path), zap.Error(err))
	}

	spec := b.buildSyncSpec(req.NotebookKey, req.WorkspaceFiles)
	b.mu.Lock()
	b.pending = spec
	b.session = session
	b.mu.Unlock()

	if err := b.sync.Sync(ctx, doc, session.KernelID, spec); err != nil {
		b.log.Warn("kernel sync failed", zap.Error(err))
	}

	content := doc.Content()
	if ks, err := b.runtime.KernelSpec(ctx); err == nil && ks != nil {
		if annotated, aerr := notebook.AnnotateKernelSpec(content, *ks); aerr == nil {
			content = annotated
		}
	}

	b.log.Info("notebook loaded",
		zap.String("key", req.NotebookKey),
		zap.String("path", doc.Path),
		zap.Int("cells", doc.CellCount()),
		zap.Int("workspace_files", len(req.WorkspaceFiles)))

	return map[string]any{"notebook_json": json.RawMessage(content)}, nil
}

func (b *Bridge) handleGetNotebookState(ctx context.Context, env protocol.Envelope) (any, error) {
	doc := b.tracker.Active()
	if doc == nil || !doc.Loaded() {
		return nil, fmt.Errorf("no notebook loaded")
	}
	return map[string]any{"notebook_json": json.RawMessage(doc.Content())}, nil
}

func (b *Bridge) handleGetCurrentCell(ctx context.Context, env protocol.Envelope) (any, error) {
	doc := b.tracker.Active()
	if doc == nil || !doc.Loaded() {
		return nil, fmt.Errorf("no notebook loaded")
	}
	code, index, ok := notebook.CurrentCell(doc.Content())
	if !ok {
		return nil, fmt.Errorf("notebook has no code cells")
	}
	return map[string]any{"code": code, "cell_index": index}, nil
}

// handleGetErrorOutput never fails: with no notebook there is no error output.
// The reply's error field doubles as the protocol error slot, so the host reads
// a remote error on this command as the data itself.
func (b *Bridge) handleGetErrorOutput(ctx context.Context, env protocol.Envelope) (any, error) {
	doc := b.tracker.Active()
	if doc == nil || !doc.Loaded() {
		return map[string]any{"error": nil}, nil
	}
	return map[string]any{"error": notebook.ErrorOutput(doc.Content())}, nil
}

// buildSyncSpec derives the sync state for a new load generation: the import
// paths (root mount then the per-notebook workspace dir) and the sanitized
// workspace files joined under the workspace dir.
func (b *Bridge) buildSyncSpec(key string, files []notebook.WorkspaceFile) kernelsync.Spec {
	workspaceDir := notebook.WorkspaceDir(b.cfg.WorkspaceRoot, key)

	clean := notebook.SanitizeManifest(files)
	runtimeFiles := make([]kernelsync.RuntimeFile, 0, len(clean))
	for _, f := range clean {
		runtimeFiles = append(runtimeFiles, kernelsync.RuntimeFile{
			Path:          path.Join(workspaceDir, f.RelativePath),
			ContentBase64: f.ContentBase64,
		})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.token++
	return kernelsync.Spec{
		Token:       b.token,
		ImportPaths: []string{b.cfg.RootMount, workspaceDir},
		Files:       runtimeFiles,
	}
}
