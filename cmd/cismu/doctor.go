package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure cismu can operate correctly.

This command checks:
- External tools (ffprobe, ffmpeg, fpcalc)
- SQLite version and database integrity
- Include roots are readable
- Cover art directory is writable
- Disk space availability
- AcoustID application key

Use this command to troubleshoot issues before scanning.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkStatus int

const (
	statusOK checkStatus = iota
	statusWarn
	statusFail
)

type checkResult struct {
	name    string
	message string
	status  checkStatus
}

func ok(name, format string, args ...interface{}) checkResult {
	return checkResult{name: name, message: fmt.Sprintf(format, args...)}
}

func warn(name, format string, args ...interface{}) checkResult {
	return checkResult{name: name, message: fmt.Sprintf(format, args...), status: statusWarn}
}

func fail(name, format string, args ...interface{}) checkResult {
	return checkResult{name: name, message: fmt.Sprintf(format, args...), status: statusFail}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== cismu doctor ===")

	results := []checkResult{
		checkTool("ffprobe", "-version", 2, "audio properties for files taglib cannot read"),
		checkTool("ffmpeg", "-version", 2, "decoding non-FLAC files for fingerprinting and quality"),
		checkTool("fpcalc", "-version", 1, "fingerprinting"),
		checkSQLite(),
	}

	cfg, err := loadConfig()
	if err != nil {
		return printResults(append(results, fail("Configuration", "%v", err)))
	}

	results = append(results, checkDatabase(cfg.Database))
	if len(cfg.Include) == 0 {
		results = append(results, warn("Include roots", "none configured (set include or pass --include to scan)"))
	}
	for _, root := range cfg.Include {
		results = append(results, checkIncludeRoot(root))
	}
	if cfg.CoverArtDir != "" {
		results = append(results,
			checkWritableDirectory("Cover art directory", cfg.CoverArtDir),
			checkDiskSpace(cfg.CoverArtDir, "cover art"))
	}
	results = append(results, checkAcoustIDKey(cfg))

	return printResults(results)
}

func printResults(results []checkResult) error {
	util.InfoLog("")

	worst := statusOK
	for _, r := range results {
		line := r.name
		if r.message != "" {
			line += ": " + r.message
		}

		switch r.status {
		case statusFail:
			util.ErrorLog("[✗] %s", line)
		case statusWarn:
			util.WarnLog("[⚠] %s", line)
		default:
			util.SuccessLog("[✓] %s", line)
		}
		worst = max(worst, r.status)
	}

	util.InfoLog("")
	switch worst {
	case statusFail:
		return errors.New("diagnostics failed, fix the errors above before scanning")
	case statusWarn:
		util.WarnLog("Some features are unavailable, see warnings above.")
	default:
		util.SuccessLog("All checks passed.")
	}
	return nil
}

// checkTool runs "<name> <versionFlag>" and reports the version found in
// the given field of the first output line. Missing tools are warnings:
// they only disable the feature named by purpose.
func checkTool(name, versionFlag string, field int, purpose string) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, versionFlag).CombinedOutput()
	if err != nil {
		return warn(name, "not found (required for %s)", purpose)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	if parts := strings.Fields(first); len(parts) > field {
		return ok(name, "version %s", parts[field])
	}
	return ok(name, "installed, version unknown")
}

func checkSQLite() checkResult {
	if v := store.SQLiteVersion(); v != "" {
		return ok("SQLite", "%s (modernc, built-in)", v)
	}
	return fail("SQLite", "driver did not report a version")
}

// checkDatabase opens an existing library and runs an integrity check. A
// missing file is fine, scan creates it.
func checkDatabase(dbPath string) checkResult {
	const name = "Database"
	if dbPath == "" {
		return warn(name, "no path configured (use --db or the database key)")
	}

	info, err := os.Stat(dbPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ok(name, "%s does not exist yet, scan will create it", dbPath)
	case err != nil:
		return fail(name, "stat %s: %v", dbPath, err)
	case !info.Mode().IsRegular():
		return fail(name, "%s is not a regular file", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fail(name, "open %s: %v", dbPath, err)
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return fail(name, "%s is damaged: %v", dbPath, err)
	}
	stats, err := db.Stats(context.Background())
	if err != nil {
		return fail(name, "query %s: %v", dbPath, err)
	}

	return ok(name, "%s (%s, %d tracks, %d songs)",
		dbPath, humanize.IBytes(uint64(info.Size())), stats.Tracks, stats.Songs)
}

func checkIncludeRoot(path string) checkResult {
	const name = "Include root"

	entries, err := os.ReadDir(path)
	if err != nil {
		if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
			return fail(name, "%s is a file, not a directory", path)
		}
		return fail(name, "cannot list %s: %v", path, err)
	}

	where := "local disk"
	if util.IsNetworkPath(path) {
		where = "network mount"
	}
	return ok(name, "%s (%d entries, %s)", path, len(entries), where)
}

// checkWritableDirectory creates path if needed and proves a file can be
// written there.
func checkWritableDirectory(name, path string) checkResult {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return fail(name, "%s is a file, not a directory", path)
	}

	created := false
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fail(name, "mkdir %s: %v", path, err)
		}
		created = true
	} else if err != nil {
		return fail(name, "stat %s: %v", path, err)
	}

	testFile := filepath.Join(path, ".cismu_write_test")
	if err := os.WriteFile(testFile, nil, 0644); err != nil {
		return fail(name, "%s is not writable: %v", path, err)
	}
	os.Remove(testFile)

	if created {
		return ok(name, "%s (created)", path)
	}
	return ok(name, "%s (writable)", path)
}

// checkDiskSpace warns below 1 GiB free or above 95% used
func checkDiskSpace(path string, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)

	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return warn(name, "statfs %s: %v", path, err)
	}

	bsize := uint64(st.Bsize)
	free := st.Bavail * bsize
	total := st.Blocks * bsize
	usedPct := 0.0
	if total > 0 {
		usedPct = float64(total-st.Bfree*bsize) / float64(total) * 100
	}

	switch {
	case free < 1<<30:
		return warn(name, "only %s free", humanize.IBytes(free))
	case usedPct > 95:
		return warn(name, "%s free, %.0f%% used", humanize.IBytes(free), usedPct)
	}
	return ok(name, "%s free of %s", humanize.IBytes(free), humanize.IBytes(total))
}

func checkAcoustIDKey(cfg *config.LibraryConfig) checkResult {
	const name = "AcoustID key"
	if cfg.AcoustID.ClientKey == "" {
		return warn(name, "not set (set CISMU_ACOUSTID_CLIENT_KEY to enable verify)")
	}
	return ok(name, "configured for %s", cfg.AcoustID.BaseURL)
}
