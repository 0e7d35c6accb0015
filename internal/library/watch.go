package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/util"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle
const DefaultDebounce = 2 * time.Second

// Remover drops the tracks of files that are gone
type Remover interface {
	RemoveTrackByPath(ctx context.Context, path string) (int, error)
	RemoveTracksUnder(ctx context.Context, dir string) (int, error)
}

// Watcher keeps the index in step with the include roots. Symlinked
// directories are not followed in watch mode.
type Watcher struct {
	lib      *Library
	remover  Remover
	debounce time.Duration
	include  []string
	exclude  []string

	onReady func()
}

// NewWatcher creates a watcher over the library's include roots
func NewWatcher(lib *Library, remover Remover, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		lib:      lib,
		remover:  remover,
		debounce: debounce,
		include:  resolveRoots(lib.cfg.Include),
		exclude:  resolveRoots(lib.cfg.Exclude),
	}
}

// Run watches until ctx is canceled. Changes are batched: every event
// pushes the flush back by the debounce interval.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	for _, root := range w.include {
		w.addTree(fw, root, nil)
	}
	if len(fw.WatchList()) == 0 {
		return fmt.Errorf("%w: no include root can be watched", util.ErrInvalidConfig)
	}
	util.InfoLog("Watching %d directories", len(fw.WatchList()))
	if w.onReady != nil {
		w.onReady()
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	changed := make(map[string]struct{})
	removed := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, ev, changed, removed) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case <-timer.C:
			w.flush(ctx, changed, removed)
			clear(changed)
			clear(removed)
		}
	}
}

// handle records one event and reports whether it is relevant
func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, changed, removed map[string]struct{}) bool {
	path := filepath.Clean(ev.Name)
	if _, ok := withinAny(path, w.exclude); ok {
		return false
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		delete(changed, path)
		removed[path] = struct{}{}
		return true
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if !ev.Has(fsnotify.Create) {
			return false
		}
		// Files moved in with the directory raise no events of their own
		w.addTree(fw, path, changed)
		return true
	}

	if _, ok := w.lib.cfg.Rule(path); !ok {
		return false
	}
	delete(removed, path)
	changed[path] = struct{}{}
	return true
}

// addTree watches root and every directory below it. When collect is
// non-nil the audio files found on the way are added to it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, collect map[string]struct{}) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			util.WarnLog("Cannot watch %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if _, ok := withinAny(path, w.exclude); ok {
				return filepath.SkipDir
			}
			if err := fw.Add(path); err != nil {
				util.WarnLog("Cannot watch %s: %v", path, err)
			}
			return nil
		}
		if collect != nil && d.Type().IsRegular() {
			if _, ok := w.lib.cfg.Rule(path); ok {
				collect[path] = struct{}{}
			}
		}
		return nil
	})
}

func (w *Watcher) flush(ctx context.Context, changed, removed map[string]struct{}) {
	for path := range removed {
		if _, err := os.Lstat(path); err == nil {
			continue
		}

		var n int
		var err error
		if _, ok := w.lib.cfg.Rule(path); ok {
			n, err = w.remover.RemoveTrackByPath(ctx, path)
		} else {
			n, err = w.remover.RemoveTracksUnder(ctx, path)
		}
		if err != nil {
			util.WarnLog("Failed to remove %s from the index: %v", path, err)
			continue
		}
		if n > 0 {
			util.InfoLog("Removed %d tracks under %s", n, path)
		}
	}

	if len(changed) == 0 {
		return
	}

	res := w.collect(changed)
	if res.Total() == 0 {
		return
	}
	stats, err := w.lib.Ingest(ctx, res)
	if err != nil {
		return
	}
	util.InfoLog("Indexed %d of %d changed files", stats.Resolved, res.Total())
}

// collect applies the scanner's extension and size rules to single files
func (w *Watcher) collect(paths map[string]struct{}) *scan.Result {
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	res := &scan.Result{Groups: make(map[string][]scan.TrackFile)}
	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		rule, ok := w.lib.cfg.Rule(path)
		if !ok {
			continue
		}
		if info.Size() < rule.MinFileSize {
			res.Skipped++
			w.lib.logger.LogSkip(path, util.ErrTooSmall.Error())
			continue
		}

		device := util.DeviceKey(path, info)
		res.Groups[device] = append(res.Groups[device], scan.TrackFile{
			Path:      path,
			Extension: config.NormalizeExt(filepath.Ext(path)),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
		res.Found++
	}
	return res
}

func resolveRoots(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

func withinAny(path string, roots []string) (string, bool) {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return root, true
		}
	}
	return "", false
}
