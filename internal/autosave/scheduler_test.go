package autosave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

type recordingSaver struct {
	mu    sync.Mutex
	saves []*notebook.Document
	delay time.Duration
	err   error

	onSave func(doc *notebook.Document)
}

func (r *recordingSaver) Save(ctx context.Context, doc *notebook.Document) error {
	snapshot := doc.Content()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.saves = append(r.saves, doc)
	onSave := r.onSave
	r.mu.Unlock()
	if onSave != nil {
		onSave(doc)
	}
	if r.err != nil {
		return r.err
	}
	doc.MarkSaved(snapshot)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func dirtyDoc(key string) *notebook.Document {
	doc := notebook.NewDocument(key, "")
	doc.Load([]byte(`{"cells": [{"cell_type": "code", "source": "a"}]}`))
	doc.Update([]byte(`{"cells": [{"cell_type": "code", "source": "ab"}]}`))
	return doc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestScheduler_DebounceCoalescesBurst(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, 30*time.Millisecond, time.Second, logging.NewNop())
	defer s.Close()

	doc := dirtyDoc("a")
	// A burst of edits arms the timer repeatedly.
	for i := 0; i < 10; i++ {
		s.Schedule(doc)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool { return saver.count() >= 1 })
	// Settle, then verify the burst produced exactly one save.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, saver.count())
	assert.False(t, doc.Dirty())
}

func TestScheduler_MidSaveEditTriggersOneMoreSave(t *testing.T) {
	newer := []byte(`{"cells": [{"cell_type": "code", "source": "abc"}]}`)
	doc := dirtyDoc("a")

	saver := &recordingSaver{delay: 40 * time.Millisecond}
	var once sync.Once
	saver.onSave = func(d *notebook.Document) {
		// First save completes against stale content: an edit landed mid-save.
		once.Do(func() { d.Update(newer) })
	}

	s := New(saver, 10*time.Millisecond, time.Second, logging.NewNop())
	defer s.Close()

	s.Schedule(doc)
	waitFor(t, func() bool { return saver.count() >= 2 })
	waitFor(t, func() bool { return !doc.Dirty() })
}

func TestScheduler_SkipsUnsaveable(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, 5*time.Millisecond, time.Second, logging.NewNop())
	defer s.Close()

	var results []string
	var mu sync.Mutex
	s.SetObserver(func(result string) {
		mu.Lock()
		results = append(results, result)
		mu.Unlock()
	})

	empty := notebook.NewDocument("empty", "")
	empty.Load([]byte(`{"cells": []}`))
	s.Flush(context.Background(), empty)

	assert.Zero(t, saver.count(), "empty notebook must not be written")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, "skipped", results[0])
}

func TestScheduler_FlushExactlyOnce(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, time.Hour, time.Second, logging.NewNop())
	defer s.Close()

	doc := dirtyDoc("a")
	// Both teardown signals arrive.
	s.Flush(context.Background(), doc)
	s.Flush(context.Background(), doc)
	assert.Equal(t, 1, saver.count())
}

func TestScheduler_FlushWaitsForInflightSave(t *testing.T) {
	doc := dirtyDoc("a")

	var (
		mu         sync.Mutex
		inflight   int
		maxOverlap int
	)
	saver := &recordingSaver{delay: 60 * time.Millisecond}

	// Count overlap directly around the saver's sleep.
	counting := saverFunc(func(ctx context.Context, d *notebook.Document) error {
		mu.Lock()
		inflight++
		if inflight > maxOverlap {
			maxOverlap = inflight
		}
		mu.Unlock()
		err := saver.Save(ctx, d)
		mu.Lock()
		inflight--
		mu.Unlock()
		return err
	})

	s := New(counting, 5*time.Millisecond, time.Second, logging.NewNop())
	defer s.Close()

	s.Schedule(doc)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inflight > 0
	})

	// Flush lands while the debounce save is still writing.
	s.Flush(context.Background(), doc)

	mu.Lock()
	overlap := maxOverlap
	mu.Unlock()
	assert.Equal(t, 1, overlap, "a flush must never overlap an in-flight save")
	assert.GreaterOrEqual(t, saver.count(), 1)
}

type saverFunc func(ctx context.Context, doc *notebook.Document) error

func (f saverFunc) Save(ctx context.Context, doc *notebook.Document) error { return f(ctx, doc) }

func TestScheduler_FloorSavesDirtyActive(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, time.Hour, time.Second, logging.NewNop())
	defer s.Close()

	doc := dirtyDoc("a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunFloor(ctx, 20*time.Millisecond, func() *notebook.Document { return doc })

	waitFor(t, func() bool { return saver.count() >= 1 })

	// Once clean, the floor stops writing.
	count := saver.count()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, count, saver.count())
}

func TestScheduler_ForgetCancelsPending(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, 20*time.Millisecond, time.Second, logging.NewNop())
	defer s.Close()

	doc := dirtyDoc("a")
	s.Schedule(doc)
	s.Forget(doc)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, saver.count())
}

func TestScheduler_CloseStopsScheduling(t *testing.T) {
	saver := &recordingSaver{}
	s := New(saver, 10*time.Millisecond, time.Second, logging.NewNop())

	doc := dirtyDoc("a")
	s.Close()
	s.Schedule(doc)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, saver.count())
}
