package meta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/util"
)

const (
	throughputSample = 3 * 1024 * 1024
	maxPermits       = 100
)

// Result is the outcome of processing one file
type Result struct {
	Track *model.UnresolvedTrack
	Path  string
	Err   error
}

// Reader reads one audio file. ReadFile is the production reader.
type Reader func(ctx context.Context, path string) (*FileInfo, error)

// Pipeline extracts metadata from scanned files, one permit pool per device
type Pipeline struct {
	cfg    *config.LibraryConfig
	covers *CoverStore
	logger *report.EventLogger
	read   Reader
	numCPU int
}

// New creates a metadata pipeline
func New(cfg *config.LibraryConfig, logger *report.EventLogger) *Pipeline {
	var covers *CoverStore
	if cfg.CoverArtDir != "" {
		covers = NewCoverStore(cfg.CoverArtDir)
	}
	return &Pipeline{
		cfg:    cfg,
		covers: covers,
		logger: logger,
		read:   ReadFile,
		numCPU: runtime.NumCPU(),
	}
}

// WithReader replaces the file reader
func (p *Pipeline) WithReader(r Reader) *Pipeline {
	p.read = r
	return p
}

type deviceGroup struct {
	device  string
	files   []scan.TrackFile
	permits int
}

// Process extracts metadata for every file in res and streams the results.
// The channel is closed once all files are done or ctx is canceled. Results
// arrive in no particular order.
func (p *Pipeline) Process(ctx context.Context, res *scan.Result) <-chan Result {
	groups := make([]deviceGroup, 0, len(res.Groups))
	total := 0
	for device, files := range res.Groups {
		if len(files) == 0 {
			continue
		}
		permits := p.permitsFor(files)
		util.DebugLog("Device %s: %d files, %d permits", device, len(files), permits)
		groups = append(groups, deviceGroup{device: device, files: files, permits: permits})
		total += permits
	}

	out := make(chan Result, 2*total)

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g deviceGroup) {
			defer wg.Done()
			p.runGroup(ctx, g, out)
		}(g)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (p *Pipeline) runGroup(ctx context.Context, g deviceGroup, out chan<- Result) {
	sem := semaphore.NewWeighted(int64(g.permits))
	var wg sync.WaitGroup

	for _, file := range g.files {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(file scan.TrackFile) {
			defer wg.Done()
			defer sem.Release(1)

			r := p.processSafe(ctx, file)
			select {
			case out <- r:
			case <-ctx.Done():
			}
		}(file)
	}

	wg.Wait()
}

// processSafe turns a panicking task into an ErrWorkerPanic result
func (p *Pipeline) processSafe(ctx context.Context, file scan.TrackFile) Result {
	var r Result
	recovered := panics.Try(func() {
		r = p.processFile(ctx, file)
	})
	if recovered != nil {
		util.ErrorLog("Metadata task for %s panicked: %v", file.Path, recovered.Value)
		r = Result{Path: file.Path, Err: fmt.Errorf("%w: %s: %v", util.ErrWorkerPanic, file.Path, recovered.AsError())}
		p.logger.LogError(report.EventMeta, file.Path, r.Err)
	}
	return r
}

func (p *Pipeline) processFile(ctx context.Context, file scan.TrackFile) Result {
	if err := ctx.Err(); err != nil {
		return Result{Path: file.Path, Err: err}
	}

	start := time.Now()
	info, err := p.read(ctx, file.Path)
	if err != nil {
		err = fmt.Errorf("failed to read %s: %w", file.Path, err)
		p.logger.LogMeta(file.Path, "", time.Since(start), err)
		return Result{Path: file.Path, Err: err}
	}

	rule, _ := p.cfg.Rule(file.Path)
	track, err := BuildTrack(file, info, rule)
	if err != nil {
		p.logger.LogMeta(file.Path, info.Source, time.Since(start), err)
		if errors.Is(err, util.ErrTooShort) {
			p.logger.LogSkip(file.Path, "too_short")
		}
		return Result{Path: file.Path, Err: err}
	}

	if p.covers != nil {
		for _, pic := range info.Pictures {
			art, err := p.covers.Save(ctx, pic.Data, pic.Description)
			if err != nil {
				util.WarnLog("Skipping cover art in %s: %v", file.Path, err)
				continue
			}
			track.Artworks = append(track.Artworks, *art)
		}
	}

	p.logger.LogMeta(file.Path, info.Source, time.Since(start), nil)
	return Result{Track: track, Path: file.Path}
}

// permitsFor chooses the concurrency of one device group
func (p *Pipeline) permitsFor(files []scan.TrackFile) int {
	mode := p.cfg.ConcurrencyMode
	if mode == config.ModeAuto || mode == "" {
		mode = config.ModeCPU
		if util.IsNetworkPath(files[0].Path) {
			mode = config.ModeThroughput
		}
	}

	if mode == config.ModeThroughput {
		mbps, err := measureThroughput(files[0].Path)
		if err == nil {
			return ThroughputPermits(mbps)
		}
		util.WarnLog("Throughput probe failed for %s, using CPU permits: %v", files[0].Path, err)
	}

	return CPUPermits(p.numCPU, p.cfg.CPUPercent)
}

// CPUPermits is ceil(numCPU * percent / 100) clamped to 1..100
func CPUPermits(numCPU, percent int) int {
	n := (numCPU*percent + 99) / 100
	if n < 1 {
		return 1
	}
	if n > maxPermits {
		return maxPermits
	}
	return n
}

// ThroughputPermits maps a measured read speed in MB/s to a permit count
func ThroughputPermits(mbps float64) int {
	switch {
	case mbps <= 5:
		return 2
	case mbps <= 40:
		return 4
	case mbps <= 150:
		return 8
	default:
		return 16
	}
}

// measureThroughput reads up to 3 MiB of path and returns MB/s
func measureThroughput(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	start := time.Now()
	n, err := io.Copy(io.Discard, io.LimitReader(f, throughputSample))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty file", util.ErrTooSmall)
	}

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		// Served from cache faster than the clock resolution
		return 1 << 20, nil
	}
	return float64(n) / (1000 * 1000) / elapsed, nil
}
