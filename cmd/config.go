package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/iksnae/feed-collector/internal"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or print the collector configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write collector.toml with the built-in defaults, including every
selector candidate, so they can be edited when the feed markup changes.

The file goes to --config when given, otherwise ~/.feed-collector/collector.toml.`,
	// The target file may not exist yet, so skip loading it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = filepath.Join(internal.DefaultConfigDir(), "collector.toml")
		}
		if err := internal.WriteConfig(path, internal.DefaultConfig(), configForce); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Wrote %s", path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults, the config file, .env and FEEDCOLLECTOR_ variables are merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.EncodeTOML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}
