package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/feed-collector/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	verbose        bool
	configPath     string
	storagePath    string
	storageBackend string
	version        string = "dev"
	commit         string = "unknown"
	date           string = "unknown"

	// cfg is loaded before every subcommand runs
	cfg *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feed-collector",
	Short: "Incrementally collect posts from a live feed page",
	Long: `A CLI tool that harvests posts by selected authors from a live,
virtualized feed rendered in a Chromium page.

The collector drives the page over the DevTools protocol, scrolls
through history, dedups what it has already seen and persists progress
so an interrupted session resumes where it left off.

Features:
  • Collect from a launched browser or attach to your own (--debugger-url)
  • Pause, resume, stop and export from the terminal or over NATS
  • Sessions archived to SQLite or plain files
  • Export in multiple formats (JSON, JSONL, Markdown, YAML)

Quick Start:
  feed-collector config init
  feed-collector collect --url https://feed.example/channel --target alice
  feed-collector list
  feed-collector export <session-id> --format md`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)

		loaded, err := internal.LoadConfig(viper.New(), configPath)
		if err != nil {
			return err
		}
		if storageBackend != "" {
			loaded.Storage.Backend = storageBackend
		}
		if storagePath != "" {
			loaded.Storage.Path = storagePath
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer internal.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured durable backend
func openStore() (internal.KVStore, error) {
	kv, err := internal.OpenStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return kv, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./collector.toml or ~/.feed-collector/collector.toml)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "", "Storage location (database file or directory)")
	rootCmd.PersistentFlags().StringVar(&storageBackend, "backend", "", "Storage backend: sqlite or file")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
