// Package autosave persists the active notebook in the background: a
// per-document debounce after edits, a fixed-interval floor, and a final
// flush on teardown.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

// Saver performs one save of a document's current content.
type Saver interface {
	Save(ctx context.Context, doc *notebook.Document) error
}

// Observer is notified of every save attempt's result: "ok", "error", "skipped".
type Observer func(result string)

type docState struct {
	timer    *time.Timer
	inflight bool
	rearm    bool
}

// Scheduler debounces and floors saves. A save for a document never overlaps
// another save of the same document: a debounce firing mid-save re-arms
// instead of starting a second write.
type Scheduler struct {
	saver       Saver
	log         *logging.Logger
	debounce    time.Duration
	saveTimeout time.Duration
	observer    Observer

	mu      sync.Mutex
	settled *sync.Cond
	state   map[*notebook.Document]*docState
	flushed map[*notebook.Document]bool
	closed  bool
}

// New creates a scheduler. debounce is the idle delay after an edit;
// saveTimeout bounds each save call.
func New(saver Saver, debounce, saveTimeout time.Duration, log *logging.Logger) *Scheduler {
	s := &Scheduler{
		saver:       saver,
		log:         log,
		debounce:    debounce,
		saveTimeout: saveTimeout,
		state:       make(map[*notebook.Document]*docState),
		flushed:     make(map[*notebook.Document]bool),
	}
	s.settled = sync.NewCond(&s.mu)
	return s
}

// SetObserver installs a metrics observer.
func (s *Scheduler) SetObserver(fn Observer) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Schedule arms (or re-arms) the debounce timer for doc.
func (s *Scheduler) Schedule(doc *notebook.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || doc.Disposed() {
		return
	}

	st, ok := s.state[doc]
	if !ok {
		st = &docState{}
		s.state[doc] = st
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(s.debounce, func() { s.fire(doc) })
}

// RunFloor triggers a save of the active document at a fixed interval,
// independent of debounce activity, until ctx is canceled. active yields the
// current document or nil.
func (s *Scheduler) RunFloor(ctx context.Context, interval time.Duration, active func() *notebook.Document) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if doc := active(); doc != nil && doc.Dirty() {
				s.fire(doc)
			}
		}
	}
}

// Flush performs the teardown save for doc exactly once. Repeated calls (both
// teardown signals arriving) are no-ops. A debounce save already in flight is
// waited out first; the flush save never overlaps it.
func (s *Scheduler) Flush(ctx context.Context, doc *notebook.Document) {
	s.mu.Lock()
	if s.flushed[doc] {
		s.mu.Unlock()
		return
	}
	s.flushed[doc] = true
	st, ok := s.state[doc]
	if !ok {
		st = &docState{}
		s.state[doc] = st
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	for st.inflight {
		s.settled.Wait()
	}
	st.inflight = true
	s.mu.Unlock()

	s.save(ctx, doc)

	s.mu.Lock()
	st.inflight = false
	s.mu.Unlock()
	s.settled.Broadcast()
}

// Forget drops all scheduling state for a disposed document.
func (s *Scheduler) Forget(doc *notebook.Document) {
	s.mu.Lock()
	if st, ok := s.state[doc]; ok && st.timer != nil {
		st.timer.Stop()
	}
	delete(s.state, doc)
	delete(s.flushed, doc)
	s.mu.Unlock()
}

// Close stops all timers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for _, st := range s.state {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	s.mu.Unlock()
}

// fire runs when a debounce elapses or the floor interval ticks. If a save is
// already in flight it re-arms instead of overlapping.
func (s *Scheduler) fire(doc *notebook.Document) {
	s.mu.Lock()
	st, ok := s.state[doc]
	if !ok {
		st = &docState{}
		s.state[doc] = st
	}
	if st.inflight {
		st.rearm = true
		s.mu.Unlock()
		return
	}
	st.inflight = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	s.save(ctx, doc)
	cancel()

	s.mu.Lock()
	st.inflight = false
	rearm := st.rearm
	st.rearm = false
	s.mu.Unlock()
	s.settled.Broadcast()

	// Edits that landed mid-save left the document dirty again.
	if rearm || doc.Dirty() {
		s.Schedule(doc)
	}
}

func (s *Scheduler) save(ctx context.Context, doc *notebook.Document) {
	if !doc.Saveable() {
		s.observe("skipped")
		return
	}
	if err := s.saver.Save(ctx, doc); err != nil {
		s.observe("error")
		s.log.Warn("autosave failed", zap.String("path", doc.Path), zap.Error(err))
		return
	}
	s.observe("ok")
}

func (s *Scheduler) observe(result string) {
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()
	if fn != nil {
		fn(result)
	}
}
