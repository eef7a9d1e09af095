package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"wikirag/internal/logger"
)

// Watcher re-processes files of a source tree as they change.
type Watcher struct {
	ctrl     *Controller
	src      Source
	workers  int
	debounce time.Duration
}

func NewWatcher(ctrl *Controller, src Source, workers int, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{ctrl: ctrl, src: src, workers: workers, debounce: debounce}
}

// Run performs a full sync, then processes created, written or renamed
// files once no further event touched them for the debounce interval.
// It returns when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := w.addTree(fsw, w.src.Root); err != nil {
		return err
	}

	if _, err := w.ctrl.Run(ctx, w.src, w.workers); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.L().Info("watching for changes", "root", w.src.Root)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, ev.Name); err != nil {
						logger.L().Warn("cannot watch directory", "dir", ev.Name, "error", err)
					}
					w.queueTree(ev.Name, pending)
					timer.Reset(w.debounce)
					continue
				}
			}
			if !w.src.Accepts(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.L().Warn("watcher error", "error", err)
		case <-timer.C:
			w.flush(ctx, pending)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if ctx.Err() != nil {
			return
		}
		// A renamed-away or deleted file has nothing left to index.
		if _, err := os.Stat(p); err != nil {
			continue
		}
		w.ctrl.Process(ctx, p)
	}
}

// queueTree adds the accepted files under a new directory, which may have
// been moved in whole with no per-file events.
func (w *Watcher) queueTree(root string, pending map[string]struct{}) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.src.Accepts(path) {
			pending[path] = struct{}{}
		}
		return nil
	})
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}
