package main

import (
	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/library"
	"github.com/franz/cismu/internal/meta"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/util"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index current while files change",
	Long: `Watch the include roots and index audio files as they appear or change.

Events are batched: once the file system has been quiet for the debounce
interval, changed files are indexed and removed files are dropped from the
library. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("debounce", library.DefaultDebounce, "quiet period before changes are indexed")
	watchCmd.Flags().Bool("initial-scan", true, "index the include roots before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Include) == 0 {
		return errNoInclude
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := openEventLogger(cfg)
	defer logger.Close()

	lib := library.New(cfg,
		scan.New(scan.FromLibrary(cfg, logger)),
		meta.New(cfg, logger),
		st, logger)

	if initial, _ := cmd.Flags().GetBool("initial-scan"); initial {
		stats, err := lib.Run(ctx)
		if stats != nil {
			printIngestStats(stats)
		}
		if err != nil {
			return err
		}
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	util.InfoLog("Watching for changes (Ctrl-C to stop)")
	return library.NewWatcher(lib, st, debounce).Run(ctx)
}
