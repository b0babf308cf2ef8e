package notebook

import (
	"bytes"
	"sync"
)

// Document is the in-memory state of one canonical notebook. All mutation goes
// through methods; the zero value is not usable.
type Document struct {
	Key   string
	Path  string
	Title string

	mu          sync.Mutex
	content     []byte
	cellCount   int
	dirty       bool
	loaded      bool
	disposed    bool
	syncedToken uint64
}

// NewDocument creates a document for the given logical key. The storage path
// is derived from the key.
func NewDocument(key, title string) *Document {
	return &Document{
		Key:   key,
		Path:  ToPath(key),
		Title: title,
	}
}

// Load installs content from the host or storage. It marks the document loaded
// and clean; a document never counts as saveable before its first Load.
func (d *Document) Load(content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
	d.cellCount = CellCount(content)
	d.loaded = true
	d.dirty = false
}

// Update installs edited content and raises the dirty flag.
func (d *Document) Update(content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
	d.cellCount = CellCount(content)
	d.dirty = true
}

// Content returns the current notebook JSON.
func (d *Document) Content() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// Dirty reports whether the document has unsaved edits.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// ClearDirty marks the document clean after a successful save.
func (d *Document) ClearDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = false
}

// MarkSaved clears the dirty flag only if the content is still the snapshot
// that was saved. Edits that landed mid-save keep the document dirty.
func (d *Document) MarkSaved(snapshot []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bytes.Equal(d.content, snapshot) {
		d.dirty = false
	}
}

// Loaded reports whether initial content has arrived.
func (d *Document) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// CellCount returns the number of cells in the current content.
func (d *Document) CellCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cellCount
}

// Saveable reports whether a save would be meaningful: loaded and non-empty.
// Persisted content is never overwritten with an empty document.
func (d *Document) Saveable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded && d.cellCount > 0 && !d.disposed
}

// Dispose marks the document destroyed. Further saves and syncs are no-ops.
func (d *Document) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = true
}

// Disposed reports whether the document has been destroyed.
func (d *Document) Disposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// SyncedToken returns the last kernel-sync generation applied to this document.
func (d *Document) SyncedToken() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncedToken
}

// SetSyncedToken records the kernel-sync generation just applied.
func (d *Document) SetSyncedToken(token uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncedToken = token
}
