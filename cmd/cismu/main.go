package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "cismu",
		Short: "cismu - index a local music library",
		Long: `cismu scans your music folders, reads tags and audio properties, and
builds a normalized catalog of artists, releases and songs in a local
SQLite database. Tracks are fingerprinted and verified against AcoustID in
the background so that the same recording on several releases becomes one
song.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/cismu.yaml)")
	rootCmd.PersistentFlags().String("db", "", "library database file (default library.db)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	// The AcoustID key usually lives in .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		util.WarnLog("Failed to load .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("cismu")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	// CISMU_ACOUSTID_CLIENT_KEY and friends
	viper.SetEnvPrefix("CISMU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("acoustid.client_key")

	util.SetColors(util.IsTerminal(os.Stderr.Fd()))
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	if err := viper.ReadInConfig(); err == nil {
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		util.WarnLog("Failed to read config file %s: %v", cfgFile, err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
