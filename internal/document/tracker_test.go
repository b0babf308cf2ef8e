package document

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

func loadedDoc(key string) *notebook.Document {
	doc := notebook.NewDocument(key, "")
	doc.Load([]byte(`{"cells": [{"cell_type": "code", "source": "x"}]}`))
	return doc
}

func TestTracker_MarkDirtyFiresSubscription(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	doc := loadedDoc("a")
	tr.SetActive(doc)

	fired := 0
	tr.OnDirty(doc, func(d *notebook.Document) {
		fired++
		assert.Same(t, doc, d)
	})

	tr.MarkDirty(doc, []byte(`{"cells": [{"cell_type": "code", "source": "y"}]}`))
	assert.Equal(t, 1, fired)
	assert.True(t, doc.Dirty())
}

func TestTracker_ResubscribeReplacesPrior(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	doc := loadedDoc("a")

	var first, second int
	tr.OnDirty(doc, func(*notebook.Document) { first++ })
	tr.OnDirty(doc, func(*notebook.Document) { second++ })

	tr.MarkDirty(doc, []byte(`{"cells": [{"cell_type": "code", "source": "y"}]}`))
	assert.Equal(t, 0, first, "replaced subscription must not fire")
	assert.Equal(t, 1, second)
}

func TestTracker_StaleUnsubscribeIsNoop(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	doc := loadedDoc("a")

	unsubOld := tr.OnDirty(doc, func(*notebook.Document) {})
	fired := 0
	tr.OnDirty(doc, func(*notebook.Document) { fired++ })

	// Unsubscribing the replaced subscription must not tear down the new one.
	unsubOld()
	tr.MarkDirty(doc, []byte(`{"cells": [{"cell_type": "code", "source": "y"}]}`))
	assert.Equal(t, 1, fired)
}

func TestTracker_Unsubscribe(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	doc := loadedDoc("a")

	fired := 0
	unsub := tr.OnSaveRequested(doc, func(*notebook.Document) { fired++ })
	tr.RequestSave(doc)
	unsub()
	tr.RequestSave(doc)
	assert.Equal(t, 1, fired)
}

func TestTracker_DisposeClearsEverything(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	doc := loadedDoc("a")
	tr.SetActive(doc)

	fired := 0
	tr.OnDirty(doc, func(*notebook.Document) { fired++ })
	tr.OnSaveRequested(doc, func(*notebook.Document) { fired++ })

	tr.Dispose(doc)
	assert.Nil(t, tr.Active())
	assert.True(t, doc.Disposed())

	// Late events for the disposed document are dropped.
	tr.MarkDirty(doc, []byte(`{}`))
	tr.RequestSave(doc)
	assert.Zero(t, fired)
}

func TestTracker_DisposeLeavesOtherActive(t *testing.T) {
	tr := NewTracker(logging.NewNop())
	oldDoc := loadedDoc("old")
	newDoc := loadedDoc("new")
	tr.SetActive(newDoc)

	tr.Dispose(oldDoc)
	assert.Same(t, newDoc, tr.Active())
}
