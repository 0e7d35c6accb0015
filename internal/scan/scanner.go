package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/util"
	"github.com/schollz/progressbar/v3"
)

// TrackFile is an accepted audio file. It is handed to the metadata
// pipeline and never persisted as is.
type TrackFile struct {
	Path      string
	Extension string
	Size      int64
	ModTime   time.Time
}

// Result maps a device key to the files found on that device
type Result struct {
	Groups     map[string][]TrackFile
	Found      int
	Skipped    int
	Duplicates int
	Errors     []error
}

// Total returns the number of accepted files across all devices
func (r *Result) Total() int {
	n := 0
	for _, files := range r.Groups {
		n += len(files)
	}
	return n
}

// Config holds scanner configuration
type Config struct {
	Include        []string
	Exclude        []string
	FollowSymlinks bool
	Threads        int
	Rules          map[string]config.ExtensionRule
	Logger         *report.EventLogger
}

// FromLibrary builds a scanner config from the library configuration
func FromLibrary(lc *config.LibraryConfig, logger *report.EventLogger) *Config {
	return &Config{
		Include:        lc.Include,
		Exclude:        lc.Exclude,
		FollowSymlinks: lc.FollowSymlinks,
		Threads:        lc.Threads(),
		Rules:          lc.Extensions,
		Logger:         logger,
	}
}

// Scanner discovers audio files under a set of roots
type Scanner struct {
	include        []string
	exclude        []string
	followSymlinks bool
	threads        int
	rules          map[string]config.ExtensionRule
	logger         *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}

	rules := make(map[string]config.ExtensionRule, len(cfg.Rules))
	for ext, rule := range cfg.Rules {
		rules[config.NormalizeExt(ext)] = rule
	}

	return &Scanner{
		include:        cfg.Include,
		exclude:        cfg.Exclude,
		followSymlinks: cfg.FollowSymlinks,
		threads:        threads,
		rules:          rules,
		logger:         cfg.Logger,
	}
}

// accepted is sent from walkers to the single collector goroutine
type accepted struct {
	device string
	file   TrackFile
}

// walk holds the state shared by the walker goroutines of one Scan call
type walk struct {
	s        *Scanner
	excluded []string
	queue    *dirQueue

	idMu    sync.Mutex
	seen    map[util.FileID]struct{}
	dirSeen map[util.FileID]struct{}

	out chan<- accepted

	errMu  sync.Mutex
	errors []error

	skipped    atomic.Int64
	duplicates atomic.Int64
	dirs       atomic.Int64
}

// Scan walks every include root in parallel and groups accepted files by device
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	excluded := canonicalRoots(s.exclude, false)
	roots := make([]string, 0, len(s.include))
	for _, root := range canonicalRoots(s.include, true) {
		if ex, ok := withinAny(root, excluded); ok {
			util.WarnLog("Skipping root %s: inside excluded path %s", root, ex)
			continue
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no readable include roots", util.ErrInvalidConfig)
	}

	util.InfoLog("Scanning %d root(s) with %d threads", len(roots), s.threads)

	results := make(chan accepted, 256)
	w := &walk{
		s:        s,
		excluded: excluded,
		queue:    newDirQueue(),
		seen:     make(map[util.FileID]struct{}),
		dirSeen:  make(map[util.FileID]struct{}),
		out:      results,
	}

	for _, root := range roots {
		if w.enterDir(root) {
			w.queue.push(root)
		}
	}

	result := &Result{Groups: make(map[string][]TrackFile)}

	var collectorWg sync.WaitGroup
	var found atomic.Int64
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for a := range results {
			result.Groups[a.device] = append(result.Groups[a.device], a.file)
			found.Add(1)
		}
	}()

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	bar := util.NewProgressBar(-1, "Scanning", "files")
	go reportProgress(progressCtx, bar, &found, &w.dirs)

	var wg sync.WaitGroup
	for i := 0; i < s.threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				dir, ok := w.queue.pop()
				if !ok {
					return
				}
				if ctx.Err() == nil {
					w.readDir(dir)
				}
				w.queue.done()
			}
		}()
	}

	wg.Wait()
	close(results)
	collectorWg.Wait()
	cancelProgress()
	if bar != nil {
		bar.Finish()
	}

	for _, files := range result.Groups {
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	}
	result.Found = int(found.Load())
	result.Skipped = int(w.skipped.Load())
	result.Duplicates = int(w.duplicates.Load())
	result.Errors = w.errors

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scan interrupted: %w", err)
	}

	util.SuccessLog("Scan complete: %d files on %d device(s), %d skipped, %d duplicates, %d errors",
		result.Found, len(result.Groups), result.Skipped, result.Duplicates, len(result.Errors))
	return result, nil
}

func reportProgress(ctx context.Context, bar *progressbar.ProgressBar, found, dirs *atomic.Int64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, d := found.Load(), dirs.Load()
			if bar != nil {
				bar.Describe(fmt.Sprintf("Scanning | %d dirs", d))
				bar.Set64(f)
			} else if f > 0 {
				util.InfoLog("Progress: %d audio files in %d directories", f, d)
			}
		}
	}
}

func (w *walk) recordError(err error) {
	w.errMu.Lock()
	w.errors = append(w.errors, err)
	w.errMu.Unlock()
}

// enterDir marks a directory as visited. It returns false for directories
// already walked through another root or a symlink cycle.
func (w *walk) enterDir(dir string) bool {
	id, err := util.StatFileID(dir)
	if err != nil {
		// without an identity the directory can still be walked once
		util.DebugLog("No identity for directory %s: %v", dir, err)
		return true
	}
	w.idMu.Lock()
	defer w.idMu.Unlock()
	if _, ok := w.dirSeen[id]; ok {
		return false
	}
	w.dirSeen[id] = struct{}{}
	return true
}

// claimFile records a file identity and reports whether it was new
func (w *walk) claimFile(id util.FileID) bool {
	w.idMu.Lock()
	defer w.idMu.Unlock()
	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = struct{}{}
	return true
}

func (w *walk) readDir(dir string) {
	w.dirs.Add(1)
	entries, err := os.ReadDir(dir)
	if err != nil {
		util.WarnLog("Error reading directory %s: %v", dir, err)
		w.recordError(fmt.Errorf("read dir %s: %w", dir, err))
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			w.visitSymlink(path)
		case entry.IsDir():
			w.visitDir(path)
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				w.skipped.Add(1)
				w.recordError(fmt.Errorf("stat %s: %w", path, err))
				continue
			}
			w.visitFile(path, info)
		}
	}
}

func (w *walk) visitDir(path string) {
	if _, ok := withinAny(path, w.excluded); ok {
		util.DebugLog("Pruned excluded directory: %s", path)
		return
	}
	if w.enterDir(path) {
		w.queue.push(path)
	}
}

func (w *walk) visitSymlink(path string) {
	if !w.s.followSymlinks {
		return
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		w.skipped.Add(1)
		w.recordError(fmt.Errorf("resolve symlink %s: %w", path, err))
		return
	}
	info, err := os.Stat(target)
	if err != nil {
		w.skipped.Add(1)
		w.recordError(fmt.Errorf("stat %s: %w", target, err))
		return
	}
	if info.IsDir() {
		w.visitDir(target)
		return
	}
	if _, ok := withinAny(target, w.excluded); ok {
		return
	}
	if info.Mode().IsRegular() {
		w.visitFile(path, info)
	}
}

func (w *walk) visitFile(path string, info fs.FileInfo) {
	ext := config.NormalizeExt(filepath.Ext(path))
	rule, ok := w.s.rules[ext]
	if !ok {
		return
	}

	id, err := util.FileIDFromInfo(path, info)
	if err != nil {
		w.skipped.Add(1)
		w.recordError(fmt.Errorf("identity %s: %w", path, err))
		return
	}
	if !w.claimFile(id) {
		w.duplicates.Add(1)
		util.DebugLog("Duplicate file identity %s: %s", id, path)
		return
	}

	if info.Size() < rule.MinFileSize {
		w.skipped.Add(1)
		w.s.logger.LogSkip(path, util.ErrTooSmall.Error())
		return
	}

	device := util.DeviceKey(path, info)
	w.s.logger.LogScan(path, info.Size(), device)
	w.out <- accepted{
		device: device,
		file: TrackFile{
			Path:      path,
			Extension: ext,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		},
	}
}

// canonicalRoots cleans and resolves roots. Missing include roots are
// dropped with a warning; missing exclude roots are kept as absolute paths.
func canonicalRoots(paths []string, mustExist bool) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			util.WarnLog("Skipping root %s: %v", p, err)
			continue
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			if mustExist {
				util.WarnLog("Skipping root %s: %v", p, err)
				continue
			}
			resolved = abs
		}
		if mustExist {
			info, err := os.Stat(resolved)
			if err != nil || !info.IsDir() {
				util.WarnLog("Skipping root %s: not a readable directory", p)
				continue
			}
		}
		out = append(out, filepath.Clean(resolved))
	}
	return out
}

// within reports whether path equals root or lies below it
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func withinAny(path string, roots []string) (string, bool) {
	for _, root := range roots {
		if within(path, root) {
			return root, true
		}
	}
	return "", false
}
