// Package document tracks which notebook document is active and fans out its
// dirty and save-requested signals to subscribers.
package document

import (
	"sync"

	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

// Callback receives the document an event fired for.
type Callback func(doc *notebook.Document)

type subscription struct {
	seq int
	fn  Callback
}

// Tracker owns the active document reference and per-document subscriptions.
// At most one dirty and one save-request subscription exist per document;
// re-subscribing tears down the prior one.
type Tracker struct {
	log *logging.Logger

	mu     sync.Mutex
	seq    int
	active *notebook.Document
	dirty  map[*notebook.Document]subscription
	save   map[*notebook.Document]subscription
}

// NewTracker creates an empty tracker.
func NewTracker(log *logging.Logger) *Tracker {
	return &Tracker{
		log:   log,
		dirty: make(map[*notebook.Document]subscription),
		save:  make(map[*notebook.Document]subscription),
	}
}

// SetActive installs doc as the active document.
func (t *Tracker) SetActive(doc *notebook.Document) {
	t.mu.Lock()
	t.active = doc
	t.mu.Unlock()
}

// Active returns the currently active document, nil when none.
func (t *Tracker) Active() *notebook.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// OnDirty subscribes to the document's dirty signal and returns an
// unsubscribe function. A prior subscription for the same document is
// replaced.
func (t *Tracker) OnDirty(doc *notebook.Document, fn Callback) func() {
	return t.subscribe(t.dirty, doc, fn)
}

// OnSaveRequested subscribes to the document's save-request signal.
func (t *Tracker) OnSaveRequested(doc *notebook.Document, fn Callback) func() {
	return t.subscribe(t.save, doc, fn)
}

func (t *Tracker) subscribe(m map[*notebook.Document]subscription, doc *notebook.Document, fn Callback) func() {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	m[doc] = subscription{seq: seq, fn: fn}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if sub, ok := m[doc]; ok && sub.seq == seq {
			delete(m, doc)
		}
		t.mu.Unlock()
	}
}

// MarkDirty installs edited content on the document and fires its dirty
// subscription. Events for disposed documents are dropped.
func (t *Tracker) MarkDirty(doc *notebook.Document, content []byte) {
	if doc.Disposed() {
		return
	}
	doc.Update(content)

	t.mu.Lock()
	sub, ok := t.dirty[doc]
	t.mu.Unlock()
	if ok {
		sub.fn(doc)
	}
}

// RequestSave fires the document's save-request subscription.
func (t *Tracker) RequestSave(doc *notebook.Document) {
	if doc.Disposed() {
		return
	}
	t.mu.Lock()
	sub, ok := t.save[doc]
	t.mu.Unlock()
	if ok {
		sub.fn(doc)
	}
}

// Dispose tears down all state for a document: subscriptions, timers held by
// subscribers (via the document's disposed flag), and the active reference if
// it points at doc. Stale callbacks can then never act on a disposed document.
func (t *Tracker) Dispose(doc *notebook.Document) {
	doc.Dispose()

	t.mu.Lock()
	delete(t.dirty, doc)
	delete(t.save, doc)
	if t.active == doc {
		t.active = nil
	}
	t.mu.Unlock()

	t.log.Debug("document disposed", zap.String("path", doc.Path))
}
