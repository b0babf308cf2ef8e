package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Lifecycle(t *testing.T) {
	doc := NewDocument("project/report", "Report")
	assert.False(t, doc.Loaded())
	assert.False(t, doc.Saveable())

	doc.Load([]byte(`{"cells": [{"cell_type": "code", "source": "1"}]}`))
	assert.True(t, doc.Loaded())
	assert.False(t, doc.Dirty(), "fresh load is clean")
	assert.True(t, doc.Saveable())
	assert.Equal(t, 1, doc.CellCount())

	doc.Update([]byte(`{"cells": [{"cell_type": "code", "source": "1"}, {"cell_type": "code", "source": "2"}]}`))
	assert.True(t, doc.Dirty())
	assert.Equal(t, 2, doc.CellCount())
}

func TestDocument_EmptyNotebookNotSaveable(t *testing.T) {
	doc := NewDocument("k", "")
	doc.Load([]byte(`{"cells": []}`))
	assert.False(t, doc.Saveable(), "empty notebook must never overwrite persisted content")
}

func TestDocument_MarkSavedKeepsDirtyOnMidSaveEdit(t *testing.T) {
	doc := NewDocument("k", "")
	edited := []byte(`{"cells": [{"cell_type": "code", "source": "a"}]}`)
	doc.Load([]byte(`{"cells": [{"cell_type": "code", "source": ""}]}`))
	doc.Update(edited)

	snapshot := doc.Content()
	// An edit lands while the save is in flight.
	newer := []byte(`{"cells": [{"cell_type": "code", "source": "ab"}]}`)
	doc.Update(newer)

	doc.MarkSaved(snapshot)
	assert.True(t, doc.Dirty(), "newer edit must survive the stale save")

	doc.MarkSaved(newer)
	assert.False(t, doc.Dirty())
}

func TestDocument_DisposeStopsSaves(t *testing.T) {
	doc := NewDocument("k", "")
	doc.Load([]byte(`{"cells": [{"cell_type": "code", "source": "x"}]}`))
	assert.True(t, doc.Saveable())

	doc.Dispose()
	assert.True(t, doc.Disposed())
	assert.False(t, doc.Saveable())
}

func TestDocument_SyncedToken(t *testing.T) {
	doc := NewDocument("k", "")
	assert.Zero(t, doc.SyncedToken())
	doc.SetSyncedToken(3)
	assert.EqualValues(t, 3, doc.SyncedToken())
}
