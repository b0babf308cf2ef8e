// Package bridge mediates between the host and the embedded notebook runtime.
// One Bridge instance is constructed per connection lifetime and owns all
// mutable workspace state; nothing here is module-level.
package bridge

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/autosave"
	"github.com/notebridge/backend/internal/document"
	"github.com/notebridge/backend/internal/infrastructure/config"
	"github.com/notebridge/backend/internal/infrastructure/monitoring"
	"github.com/notebridge/backend/internal/isolation"
	"github.com/notebridge/backend/internal/kernelsync"
	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
	"github.com/notebridge/backend/internal/protocol"
	"github.com/notebridge/backend/internal/runtime"
)

// readyAnnounceDelays are the re-announcement delays after activation,
// defending against a host that attaches its listener slightly late.
var readyAnnounceDelays = []time.Duration{250 * time.Millisecond, 1 * time.Second, 3 * time.Second}

// Bridge wires the protocol surface to the workspace components.
type Bridge struct {
	cfg       config.BridgeConfig
	log       *logging.Logger
	runtime   runtime.Client
	tracker   *document.Tracker
	scheduler *autosave.Scheduler
	isolation *isolation.Manager
	sync      *kernelsync.Synchronizer
	metrics   *monitoring.Metrics
	transport protocol.Transport

	mu         sync.Mutex
	token      uint64
	pending    kernelsync.Spec
	watchFiles []kernelsync.RuntimeFile
	session    runtime.SessionInfo
	unsubDirty func()
	unsubSave  func()
}

// New constructs a bridge over the given transport. metrics may be nil.
func New(cfg config.BridgeConfig, rt runtime.Client, metrics *monitoring.Metrics, t protocol.Transport, log *logging.Logger) *Bridge {
	b := &Bridge{
		cfg:       cfg,
		log:       log,
		runtime:   rt,
		metrics:   metrics,
		transport: t,
	}
	b.tracker = document.NewTracker(log.Named("tracker"))
	b.scheduler = autosave.New(b, cfg.AutosaveDebounce, cfg.SaveTimeout, log.Named("autosave"))
	b.isolation = isolation.NewManager(rt, b.tracker, b, cfg.SaveTimeout, log.Named("isolation"))
	b.sync = kernelsync.New(rt, log.Named("kernelsync"))

	if metrics != nil {
		b.scheduler.SetObserver(func(result string) {
			metrics.SavesTotal.WithLabelValues(result).Inc()
		})
		b.isolation.SetObservers(
			func() { metrics.IsolationRuns.Inc() },
			func(step string) { metrics.IsolationStepFailures.WithLabelValues(step).Inc() },
		)
		b.sync.SetObservers(
			func() { metrics.SyncRuns.Inc() },
			func() { metrics.SyncSkipped.Inc() },
		)
	}
	return b
}

// Register installs the command handlers on the dispatcher.
func (b *Bridge) Register(d *protocol.Dispatcher) {
	d.Handle(protocol.CmdPing, b.handlePing)
	d.Handle(protocol.CmdLoadNotebook, b.handleLoadNotebook)
	d.Handle(protocol.CmdGetNotebookState, b.handleGetNotebookState)
	d.Handle(protocol.CmdGetCurrentCell, b.handleGetCurrentCell)
	d.Handle(protocol.CmdGetErrorOutput, b.handleGetErrorOutput)
}

// Run starts the background loops: the autosave floor and the runtime event
// pump. It blocks until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.scheduler.RunFloor(ctx, b.cfg.AutosaveInterval, b.tracker.Active)
	}()
	go func() {
		defer wg.Done()
		b.pumpEvents(ctx)
	}()
	wg.Wait()
}

// Announce emits the ready notification, then re-emits it after fixed delays.
func (b *Bridge) Announce(ctx context.Context) {
	b.notify(protocol.NotifyReady, nil)
	go func() {
		for _, delay := range readyAnnounceDelays {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				b.notify(protocol.NotifyReady, nil)
			}
		}
	}()
}

// Shutdown flushes the active document and tears the workspace down. Safe to
// call more than once.
func (b *Bridge) Shutdown(ctx context.Context) {
	if doc := b.tracker.Active(); doc != nil {
		b.scheduler.Flush(ctx, doc)
		b.disposeActive(doc)
	}
	b.scheduler.Close()
}

// Save implements autosave.Saver: persist the document's current content and
// clear the dirty flag unless edits landed mid-save.
func (b *Bridge) Save(ctx context.Context, doc *notebook.Document) error {
	snapshot := doc.Content()
	if err := b.runtime.SaveDocument(ctx, doc.Path, snapshot); err != nil {
		return err
	}
	doc.MarkSaved(snapshot)
	return nil
}

// saveIfSaveable persists doc unless the saveable guard rejects it. An
// unloaded, empty, or disposed document never overwrites persisted content.
func (b *Bridge) saveIfSaveable(ctx context.Context, doc *notebook.Document) error {
	if !doc.Saveable() {
		b.log.Debug("skipping save of unsaveable document", zap.String("path", doc.Path))
		return nil
	}
	return b.Save(ctx, doc)
}

// ResyncActive re-applies the pending runtime sync state to the active
// document's kernel. Used after kernel attach and watch-directory changes.
func (b *Bridge) ResyncActive(ctx context.Context) {
	doc := b.tracker.Active()
	if doc == nil {
		return
	}
	b.mu.Lock()
	spec := b.pending
	if len(b.watchFiles) > 0 {
		merged := make([]kernelsync.RuntimeFile, 0, len(spec.Files)+len(b.watchFiles))
		merged = append(merged, spec.Files...)
		merged = append(merged, b.watchFiles...)
		spec.Files = merged
	}
	kernelID := b.session.KernelID
	b.mu.Unlock()
	if err := b.sync.Sync(ctx, doc, kernelID, spec); err != nil {
		b.log.Warn("kernel resync failed", zap.Error(err))
	}
}

// BumpSyncToken installs a fresh shared file set and advances the sync
// generation so the next resync re-injects. Paths are resolved against the
// active document's workspace directory.
func (b *Bridge) BumpSyncToken(files []notebook.WorkspaceFile) {
	doc := b.tracker.Active()
	if doc == nil {
		return
	}
	dir := notebook.WorkspaceDir(b.cfg.WorkspaceRoot, doc.Key)
	clean := notebook.SanitizeManifest(files)
	shared := make([]kernelsync.RuntimeFile, 0, len(clean))
	for _, f := range clean {
		shared = append(shared, kernelsync.RuntimeFile{
			Path:          path.Join(dir, f.RelativePath),
			ContentBase64: f.ContentBase64,
		})
	}

	b.mu.Lock()
	b.token++
	b.pending.Token = b.token
	b.watchFiles = shared
	b.mu.Unlock()
}

// pumpEvents consumes the runtime event stream, reconnecting with a fixed
// backoff until ctx ends.
func (b *Bridge) pumpEvents(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		events, err := b.runtime.Events(ctx)
		if err != nil {
			b.log.Debug("event stream unavailable", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				continue
			}
		}
		for ev := range events {
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, ev runtime.Event) {
	doc := b.tracker.Active()
	if doc == nil || ev.Path != doc.Path {
		return
	}
	switch ev.Type {
	case runtime.EventDocumentChanged:
		if len(ev.Content) > 0 {
			b.tracker.MarkDirty(doc, ev.Content)
		}
	case runtime.EventSaveRequested:
		b.tracker.RequestSave(doc)
	case runtime.EventKernelAttached:
		b.mu.Lock()
		b.session.KernelID = ev.KernelID
		b.mu.Unlock()
		b.ResyncActive(ctx)
	}
}

// disposeActive tears down subscriptions and scheduling for doc.
func (b *Bridge) disposeActive(doc *notebook.Document) {
	b.mu.Lock()
	unsubDirty, unsubSave := b.unsubDirty, b.unsubSave
	b.unsubDirty, b.unsubSave = nil, nil
	b.mu.Unlock()
	if unsubDirty != nil {
		unsubDirty()
	}
	if unsubSave != nil {
		unsubSave()
	}
	b.scheduler.Forget(doc)
	b.tracker.Dispose(doc)
}

// subscribeActive installs the dirty and save-request subscriptions for the
// new active document, replacing any prior ones.
func (b *Bridge) subscribeActive(doc *notebook.Document) {
	unsubDirty := b.tracker.OnDirty(doc, func(d *notebook.Document) {
		b.notify(protocol.NotifyDirty, nil)
		b.scheduler.Schedule(d)
	})
	unsubSave := b.tracker.OnSaveRequested(doc, func(d *notebook.Document) {
		b.notify(protocol.NotifySaveRequested, nil)
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SaveTimeout)
		defer cancel()
		if err := b.saveIfSaveable(ctx, d); err != nil {
			b.log.Warn("requested save failed", zap.Error(err))
		}
	})

	b.mu.Lock()
	b.unsubDirty, b.unsubSave = unsubDirty, unsubSave
	b.mu.Unlock()
}

func (b *Bridge) notify(command string, payload any) {
	env, err := protocol.NewEnvelope(command, "", payload)
	if err != nil {
		b.log.Error("failed to build notification", zap.String("command", command), zap.Error(err))
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Error("failed to encode notification", zap.String("command", command), zap.Error(err))
		return
	}
	if err := b.transport.WriteFrame(data); err != nil {
		b.log.Debug("failed to send notification", zap.String("command", command), zap.Error(err))
	}
}
