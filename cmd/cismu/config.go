package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
)

var errNoInclude = fmt.Errorf("%w: no include roots (use --include or set include in the config)", util.ErrInvalidConfig)

// loadConfig builds the library configuration with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (CISMU_*)
// 3. Config file
// 4. Default value
func loadConfig() (*config.LibraryConfig, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the library database named by cfg
func openStore(cfg *config.LibraryConfig) (*store.Store, error) {
	util.DebugLog("Opening database: %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// openEventLogger creates the JSONL event log. A log that cannot be created
// is not fatal.
func openEventLogger(cfg *config.LibraryConfig) *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(cfg.EventLogDir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.DebugLog("Event log: %s", logger.Path())
	}
	return logger
}

// commandContext is canceled on Ctrl-C so that workers stop between
// transactions.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
