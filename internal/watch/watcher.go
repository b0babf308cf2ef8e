// Package watch mirrors a local shared-files directory into the kernel
// workspace. Changes under the directory are debounced, re-read, and pushed
// through the bridge's sync token so attached kernels pick them up.
package watch

import (
	"context"
	"encoding/base64"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

const debounce = 500 * time.Millisecond

// Sink receives the refreshed shared file set.
type Sink interface {
	BumpAndResync(ctx context.Context, files []notebook.WorkspaceFile)
}

// Watcher observes one directory tree for shared file changes.
type Watcher struct {
	dir  string
	sink Sink
	log  *logging.Logger
}

// New creates a watcher over dir. dir must exist.
func New(dir string, sink Sink, log *logging.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "watch", Path: dir, Err: fs.ErrInvalid}
	}
	return &Watcher{dir: dir, sink: sink, log: log}, nil
}

// Run watches until ctx is canceled. Events are coalesced over a short
// debounce window before the directory is re-read.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.dir); err != nil {
		return err
	}
	w.log.Info("watching shared files", zap.String("dir", w.dir))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					// New subdirectories need their own watch.
					if err := w.addRecursive(fw, ev.Name); err != nil {
						w.log.Warn("failed to watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-fire:
			timer = nil
			fire = nil
			files, err := w.snapshot()
			if err != nil {
				w.log.Warn("failed to read shared files", zap.Error(err))
				continue
			}
			w.log.Debug("shared files changed", zap.Int("files", len(files)))
			w.sink.BumpAndResync(ctx, files)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
}

// snapshot reads the whole tree into a workspace manifest.
func (w *Watcher) snapshot() ([]notebook.WorkspaceFile, error) {
	var files []notebook.WorkspaceFile
	err := filepath.WalkDir(w.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			// File vanished between walk and read; skip it.
			return nil
		}
		files = append(files, notebook.WorkspaceFile{
			RelativePath:  filepath.ToSlash(rel),
			ContentBase64: base64.StdEncoding.EncodeToString(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
