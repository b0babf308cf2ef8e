// Package kernelsync injects host-provided shared files and import paths into
// a live kernel's filesystem, so code the user writes can import shared
// dependencies.
package kernelsync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

// RuntimeFile is one file to materialize inside the kernel filesystem.
type RuntimeFile struct {
	Path          string
	ContentBase64 string
}

// Spec is the pending synchronization state for a load generation. Token
// increments on every load; a document is only re-synchronized when its
// last-synced token differs, so a mere kernel restart does not re-inject.
type Spec struct {
	Token       uint64
	ImportPaths []string
	Files       []RuntimeFile
}

// Empty reports whether there is nothing to synchronize.
func (s Spec) Empty() bool {
	return len(s.ImportPaths) == 0 && len(s.Files) == 0
}

// Executor runs code inside a kernel.
type Executor interface {
	Execute(ctx context.Context, kernelID, code string, silent bool) error
}

// Synchronizer applies a Spec to a kernel. Synchronization is opportunistic:
// it re-runs on every kernel attach, returns without error when no kernel is
// available, and individual execution failures never abort the sequence.
type Synchronizer struct {
	exec Executor
	log  *logging.Logger

	mu     sync.Mutex
	onRun  func()
	onSkip func()
}

// New creates a synchronizer.
func New(exec Executor, log *logging.Logger) *Synchronizer {
	return &Synchronizer{exec: exec, log: log}
}

// SetObservers installs metrics hooks for applied and skipped syncs.
func (s *Synchronizer) SetObservers(onRun, onSkip func()) {
	s.mu.Lock()
	s.onRun = onRun
	s.onSkip = onSkip
	s.mu.Unlock()
}

// Sync applies spec to the document's kernel. Files are materialized first,
// then the path program runs: its working-directory preference depends on the
// workspace directories already existing.
func (s *Synchronizer) Sync(ctx context.Context, doc *notebook.Document, kernelID string, spec Spec) error {
	if spec.Empty() {
		return nil
	}
	if kernelID == "" || doc.Disposed() {
		return nil
	}
	if doc.SyncedToken() == spec.Token {
		s.notify(false)
		s.log.Debug("kernel sync skipped, token unchanged",
			zap.String("path", doc.Path), zap.Uint64("token", spec.Token))
		return nil
	}

	s.notify(true)
	s.log.Info("synchronizing kernel runtime",
		zap.String("path", doc.Path),
		zap.Uint64("token", spec.Token),
		zap.Int("files", len(spec.Files)),
		zap.Int("import_paths", len(spec.ImportPaths)))

	for _, f := range spec.Files {
		if err := s.exec.Execute(ctx, kernelID, fileProgram(f.Path, f.ContentBase64), true); err != nil {
			s.log.Warn("failed to materialize runtime file",
				zap.String("file", f.Path), zap.Error(err))
		}
	}

	if len(spec.ImportPaths) > 0 {
		if err := s.exec.Execute(ctx, kernelID, pathProgram(spec.ImportPaths), true); err != nil {
			s.log.Warn("failed to extend kernel import path", zap.Error(err))
		}
	}

	doc.SetSyncedToken(spec.Token)
	return nil
}

func (s *Synchronizer) notify(ran bool) {
	s.mu.Lock()
	onRun, onSkip := s.onRun, s.onSkip
	s.mu.Unlock()
	if ran && onRun != nil {
		onRun()
	}
	if !ran && onSkip != nil {
		onSkip()
	}
}
