// Package isolation enforces the single-document workspace invariant: after a
// run, exactly one notebook document exists, with no other views, persisted
// entries, or live kernels. The underlying document system's multi-document
// affordances (tabs, recents, orphan sessions) would otherwise leak state
// across logical notebook switches.
package isolation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notebridge/backend/internal/autosave"
	"github.com/notebridge/backend/internal/document"
	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/runtime"
)

// workspaceDirPattern matches directories created for a notebook workspace:
// a sanitized stem followed by the short key hash.
var workspaceDirPattern = regexp.MustCompile(`-[0-9a-f]{8}$`)

// Manager serializes and executes the isolation sequence.
type Manager struct {
	runtime     runtime.Client
	tracker     *document.Tracker
	saver       autosave.Saver
	saveTimeout time.Duration
	log         *logging.Logger

	onRun         func()
	onStepFailure func(step string)

	queueMu sync.Mutex
	tail    chan struct{}
}

// NewManager creates an isolation manager. saver performs the bounded save of
// an outgoing document before it is replaced.
func NewManager(rt runtime.Client, tracker *document.Tracker, saver autosave.Saver, saveTimeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		runtime:     rt,
		tracker:     tracker,
		saver:       saver,
		saveTimeout: saveTimeout,
		log:         log,
	}
}

// SetObservers installs metrics hooks.
func (m *Manager) SetObservers(onRun func(), onStepFailure func(step string)) {
	m.onRun = onRun
	m.onStepFailure = onStepFailure
}

// EnforceSingleDocument runs the isolation sequence for the canonical path and
// returns the view left open over it. Invocations are strictly serialized:
// each call waits for the prior call to settle (its failure is swallowed), so
// concurrent loads are linearized, never interleaved.
//
// Every cleanup step is best-effort; only failing to end up with an open view
// over the canonical document is an error.
func (m *Manager) EnforceSingleDocument(ctx context.Context, canonicalPath, title string) (runtime.SessionInfo, error) {
	m.queueMu.Lock()
	prev := m.tail
	done := make(chan struct{})
	m.tail = done
	m.queueMu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Abandoning the queue slot must not release the successor while
			// the predecessor is still running; hand the slot over only once
			// the predecessor settles.
			go func() {
				<-prev
				close(done)
			}()
			return runtime.SessionInfo{}, ctx.Err()
		}
	}
	defer close(done)

	if m.onRun != nil {
		m.onRun()
	}
	m.log.Info("enforcing single-document workspace", zap.String("path", canonicalPath))

	var kept *runtime.SessionInfo

	steps := []Step{
		{Name: "save-outgoing", Run: func(ctx context.Context) error {
			return m.saveOutgoing(ctx, canonicalPath)
		}},
		{Name: "close-views", Run: func(ctx context.Context) error {
			session, err := m.closeOtherViews(ctx, canonicalPath)
			kept = session
			return err
		}},
		{Name: "delete-documents", Run: func(ctx context.Context) error {
			return m.deleteOtherDocuments(ctx, canonicalPath)
		}},
		{Name: "shutdown-kernels", Run: func(ctx context.Context) error {
			return m.shutdownOtherKernels(ctx, kept)
		}},
		{Name: "clear-recents", Run: func(ctx context.Context) error {
			return m.runtime.ClearRecents(ctx)
		}},
	}
	runAll(ctx, m.log, m.onStepFailure, steps)

	if kept == nil {
		session, err := m.runtime.OpenSession(ctx, canonicalPath)
		if err != nil {
			return runtime.SessionInfo{}, fmt.Errorf("open canonical document %q: %w", canonicalPath, err)
		}
		kept = &session
	}

	// Presentation is cosmetic; its failure never fails the sequence.
	if err := m.runtime.ApplyPresentation(ctx, runtime.Presentation{
		Title:      title,
		AutoRename: false,
		HideChrome: true,
	}); err != nil {
		m.log.Warn("failed to apply presentation", zap.Error(err))
		if m.onStepFailure != nil {
			m.onStepFailure("apply-presentation")
		}
	}

	return *kept, nil
}

// saveOutgoing saves the active document, bounded, when a different document
// is about to be replaced.
func (m *Manager) saveOutgoing(ctx context.Context, canonicalPath string) error {
	outgoing := m.tracker.Active()
	if outgoing == nil || outgoing.Path == canonicalPath || !outgoing.Saveable() {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(ctx, m.saveTimeout)
	defer cancel()
	return m.saver.Save(saveCtx, outgoing)
}

// closeOtherViews closes every open view except the first one matching the
// canonical path, which it returns.
func (m *Manager) closeOtherViews(ctx context.Context, canonicalPath string) (*runtime.SessionInfo, error) {
	sessions, err := m.runtime.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var kept *runtime.SessionInfo
	var failures []string
	for i := range sessions {
		s := sessions[i]
		if s.Path == canonicalPath && kept == nil {
			kept = &s
			continue
		}
		if err := m.runtime.CloseSession(ctx, s.ID); err != nil {
			failures = append(failures, s.ID)
		}
	}
	if len(failures) > 0 {
		return kept, fmt.Errorf("failed to close views: %s", strings.Join(failures, ", "))
	}
	return kept, nil
}

// deleteOtherDocuments removes every persisted notebook, and every workspace
// directory, other than the canonical ones.
func (m *Manager) deleteOtherDocuments(ctx context.Context, canonicalPath string) error {
	docs, err := m.runtime.ListDocuments(ctx)
	if err != nil {
		return err
	}
	canonicalStem := strings.TrimSuffix(canonicalPath, ".ipynb")
	var failures []string
	for _, doc := range docs {
		switch doc.Type {
		case "notebook":
			if doc.Path == canonicalPath {
				continue
			}
		case "directory":
			if !workspaceDirPattern.MatchString(doc.Path) || doc.Path == canonicalStem {
				continue
			}
		default:
			continue
		}
		if err := m.runtime.DeleteDocument(ctx, doc.Path); err != nil {
			failures = append(failures, doc.Path)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to delete documents: %s", strings.Join(failures, ", "))
	}
	return nil
}

// shutdownOtherKernels terminates every live kernel except the kept view's.
// Shutdowns within the step run concurrently; the step itself stays ordered.
func (m *Manager) shutdownOtherKernels(ctx context.Context, kept *runtime.SessionInfo) error {
	kernels, err := m.runtime.ListKernels(ctx)
	if err != nil {
		return err
	}
	// A plain group: one kernel failing to die must not cancel the others.
	var g errgroup.Group
	for _, k := range kernels {
		if kept != nil && k.ID == kept.KernelID {
			continue
		}
		id := k.ID
		g.Go(func() error {
			if err := m.runtime.ShutdownKernel(ctx, id); err != nil {
				return fmt.Errorf("kernel %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
