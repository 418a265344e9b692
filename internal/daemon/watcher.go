package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/phuslu/log"

	"github.com/fenilsonani/repotidy/internal/fsutil"
	"github.com/fenilsonani/repotidy/internal/scanner"
)

// Watcher reports project changes once the tree has been quiet for the
// debounce interval. Excluded directories and the state directory are not
// watched.
type Watcher struct {
	root     string
	scanner  *scanner.Scanner
	debounce time.Duration
	onChange func(ctx context.Context, changed []string)
	logger   *log.Logger
	ready    chan struct{}
}

// NewWatcher creates a watcher. onChange receives the sorted relative paths
// that changed since the previous call.
func NewWatcher(root string, sc *scanner.Scanner, debounce time.Duration, onChange func(context.Context, []string), logger *log.Logger) *Watcher {
	return &Watcher{
		root:     root,
		scanner:  sc,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the initial tree is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the tree until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	close(w.ready)

	w.logger.Info().Str("root", w.root).Int("dirs", len(fw.WatchList())).Msg("watching project")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			info, err := os.Lstat(event.Name)
			isDir := err == nil && info.IsDir()
			rel, ok := w.relevant(event.Name, isDir)
			if !ok {
				continue
			}
			if event.Has(fsnotify.Create) && isDir {
				if err := w.addTree(fw, event.Name); err != nil {
					w.logger.Warn().Err(err).Str("dir", rel).Msg("failed to watch new directory")
				}
			}
			pending[rel] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			w.onChange(ctx, changed)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// addTree watches dir and every non-excluded directory below it
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("failed to walk %s: %w", p, err)
			}
			w.logger.Debug().Err(err).Str("path", p).Msg("skipping unreadable directory")
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := w.relevant(p, true); !ok {
			return fs.SkipDir
		}
		if err := fw.Add(p); err != nil {
			w.logger.Debug().Err(err).Str("path", p).Msg("failed to watch directory")
		}
		return nil
	})
}

// relevant maps an absolute path to its relative form, rejecting paths
// outside the root or inside an excluded directory. Only directory names
// are matched against the exclude list, so a file like build.sh is kept.
func (w *Watcher) relevant(p string, isDir bool) (string, bool) {
	rel, err := fsutil.Rel(w.root, p)
	if err != nil || !fsutil.WithinRoot(rel) {
		return "", false
	}
	if rel == "." {
		return rel, true
	}

	parts := strings.Split(rel, "/")
	dirs := len(parts) - 1
	if isDir {
		dirs = len(parts)
	}
	for i := range dirs {
		if w.scanner.IsExcludedDir(strings.Join(parts[:i+1], "/")) {
			return "", false
		}
	}
	return rel, true
}
