// Package config holds the library configuration consumed by the scanner,
// the metadata pipeline, the store and the queue workers.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/franz/cismu/internal/util"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

// Concurrency modes for the metadata pipeline
const (
	ModeAuto       = "auto"
	ModeCPU        = "cpu"
	ModeThroughput = "throughput"
)

// ExtensionRule is the minimum a file of a given extension must meet
type ExtensionRule struct {
	MinFileSize int64         `mapstructure:"min_file_size"`
	MinDuration time.Duration `mapstructure:"min_duration"`
}

// AcoustIDConfig configures the verification client
type AcoustIDConfig struct {
	ClientKey string        `mapstructure:"client_key"`
	BaseURL   string        `mapstructure:"base_url"`
	RateLimit time.Duration `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LibraryConfig is built once at startup and passed to every component
type LibraryConfig struct {
	Database             string                   `mapstructure:"database"`
	Include              []string                 `mapstructure:"include"`
	Exclude              []string                 `mapstructure:"exclude"`
	FollowSymlinks       bool                     `mapstructure:"follow_symlinks"`
	ScanThreads          int                      `mapstructure:"scan_threads"`
	Extensions           map[string]ExtensionRule `mapstructure:"extensions"`
	CoverArtDir          string                   `mapstructure:"cover_art_dir"`
	CPUPercent           int                      `mapstructure:"cpu_percent"`
	ConcurrencyMode      string                   `mapstructure:"concurrency_mode"`
	FingerprintAlgorithm string                   `mapstructure:"fingerprint_algorithm"`
	FingerprintBatch     int                      `mapstructure:"fingerprint_batch"`
	VerifyBatch          int                      `mapstructure:"verify_batch"`
	VerifyInterval       time.Duration            `mapstructure:"verify_interval"`
	QualityBatch         int                      `mapstructure:"quality_batch"`
	EventLogDir          string                   `mapstructure:"event_log_dir"`
	AcoustID             AcoustIDConfig           `mapstructure:"acoustid"`
}

// DefaultExtensions returns the per-extension size and duration floors
func DefaultExtensions() map[string]ExtensionRule {
	minDur := 30 * time.Second
	return map[string]ExtensionRule{
		"mp3":  {MinFileSize: 500 * KiB, MinDuration: minDur},
		"aac":  {MinFileSize: 500 * KiB, MinDuration: minDur},
		"mp4":  {MinFileSize: 1 * MiB, MinDuration: minDur},
		"m4a":  {MinFileSize: 1 * MiB, MinDuration: minDur},
		"ogg":  {MinFileSize: 500 * KiB, MinDuration: minDur},
		"opus": {MinFileSize: 500 * KiB, MinDuration: minDur},
		"wav":  {MinFileSize: 5 * MiB, MinDuration: minDur},
		"flac": {MinFileSize: 2 * MiB, MinDuration: minDur},
	}
}

// Default returns a configuration with every field populated
func Default() *LibraryConfig {
	return &LibraryConfig{
		Database:             "library.db",
		FollowSymlinks:       true,
		ScanThreads:          runtime.NumCPU(),
		Extensions:           DefaultExtensions(),
		CoverArtDir:          "cover_art",
		CPUPercent:           50,
		ConcurrencyMode:      ModeAuto,
		FingerprintAlgorithm: "chromaprint",
		FingerprintBatch:     10,
		VerifyBatch:          3,
		VerifyInterval:       4 * time.Second,
		QualityBatch:         10,
		EventLogDir:          "artifacts",
		AcoustID: AcoustIDConfig{
			BaseURL:   "https://api.acoustid.org/v2",
			RateLimit: 334 * time.Millisecond,
			Timeout:   30 * time.Second,
		},
	}
}

// SetDefaults registers the defaults on v so that env vars and config
// files only need to name what they override.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database", d.Database)
	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("follow_symlinks", d.FollowSymlinks)
	v.SetDefault("scan_threads", d.ScanThreads)
	v.SetDefault("cover_art_dir", d.CoverArtDir)
	v.SetDefault("cpu_percent", d.CPUPercent)
	v.SetDefault("concurrency_mode", d.ConcurrencyMode)
	v.SetDefault("fingerprint_algorithm", d.FingerprintAlgorithm)
	v.SetDefault("fingerprint_batch", d.FingerprintBatch)
	v.SetDefault("verify_batch", d.VerifyBatch)
	v.SetDefault("verify_interval", d.VerifyInterval)
	v.SetDefault("quality_batch", d.QualityBatch)
	v.SetDefault("event_log_dir", d.EventLogDir)
	v.SetDefault("acoustid.base_url", d.AcoustID.BaseURL)
	v.SetDefault("acoustid.rate_limit", d.AcoustID.RateLimit)
	v.SetDefault("acoustid.timeout", d.AcoustID.Timeout)
}

// Load decodes v into a LibraryConfig and validates it. Extension rules
// given in the config replace the defaults for that extension only.
func Load(v *viper.Viper) (*LibraryConfig, error) {
	cfg := Default()
	cfg.Extensions = nil

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	merged := DefaultExtensions()
	for ext, rule := range cfg.Extensions {
		merged[NormalizeExt(ext)] = rule
	}
	cfg.Extensions = merged

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NormalizeExt lowercases an extension and strips its leading dot
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Rule returns the rule for a path's extension
func (c *LibraryConfig) Rule(path string) (ExtensionRule, bool) {
	rule, ok := c.Extensions[NormalizeExt(filepath.Ext(path))]
	return rule, ok
}

// Validate checks the configuration for values the pipeline cannot work with
func (c *LibraryConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("%w: database path is empty", util.ErrInvalidConfig)
	}
	if c.CPUPercent < 1 || c.CPUPercent > 100 {
		return fmt.Errorf("%w: cpu_percent must be in 1..100, got %d", util.ErrInvalidConfig, c.CPUPercent)
	}
	if c.ScanThreads < 0 {
		return fmt.Errorf("%w: scan_threads must not be negative", util.ErrInvalidConfig)
	}
	switch c.ConcurrencyMode {
	case ModeAuto, ModeCPU, ModeThroughput:
	default:
		return fmt.Errorf("%w: unknown concurrency_mode %q", util.ErrInvalidConfig, c.ConcurrencyMode)
	}
	for ext, rule := range c.Extensions {
		if rule.MinFileSize <= 0 {
			return fmt.Errorf("%w: extension %s: min_file_size must be > 0", util.ErrInvalidConfig, ext)
		}
		if rule.MinDuration <= 0 {
			return fmt.Errorf("%w: extension %s: min_duration must be > 0", util.ErrInvalidConfig, ext)
		}
	}
	if c.FingerprintBatch <= 0 || c.VerifyBatch <= 0 || c.QualityBatch <= 0 {
		return fmt.Errorf("%w: queue batch sizes must be > 0", util.ErrInvalidConfig)
	}
	return nil
}

// Threads returns the scan worker count, defaulting to the CPU count
func (c *LibraryConfig) Threads() int {
	if c.ScanThreads <= 0 {
		return runtime.NumCPU()
	}
	return c.ScanThreads
}
