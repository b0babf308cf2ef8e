// Package notebook models the single canonical notebook document the bridge
// manages: its identity (key, derived storage path, title), its content and
// dirty state, and pure helpers over the notebook JSON.
package notebook
