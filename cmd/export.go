package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/export"
	"github.com/spf13/cobra"
)

var (
	format     string
	outputDir  string
	privileged bool
	allSession bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export archived sessions to file",
	Long: `Export the records of an archived session (json, jsonl, md, yaml).

Without an id the latest session is exported; --all exports every session.
--privileged keeps only the records of privileged authors.
Use 'feed-collector list' to see available session IDs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("format") {
			format = cfg.Export.Format
		}
		if !cmd.Flags().Changed("out") {
			outputDir = cfg.Export.Dir
		}
		// Fail on an unsupported format before touching storage
		if _, err := export.NewExporter(format); err != nil {
			return err
		}

		kv, err := openStore()
		if err != nil {
			return err
		}
		defer kv.Close()
		store := internal.NewStateStore(kv)

		var snaps []*internal.Snapshot
		if allSession {
			snaps, err = store.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
		} else {
			snap, err := resolveSession(cmd, store, args)
			if err != nil {
				return err
			}
			snaps = []*internal.Snapshot{snap}
		}

		scope := internal.ScopeAll
		if privileged {
			scope = internal.ScopePrivileged
		}

		written := 0
		err = internal.ShowProgress(cmd.Context(), fmt.Sprintf("Exporting %d session(s) to %s", len(snaps), outputDir), func() error {
			for _, snap := range snaps {
				path, err := exportSnapshot(snap, scope, format, outputDir, time.Now())
				if errors.Is(err, internal.ErrNoRecords) {
					internal.LogWarn("Session %s has no %s records, skipping", snap.SessionID, scope)
					continue
				}
				if err != nil {
					return err
				}
				internal.LogInfo("Wrote %s", path)
				written++
			}
			return nil
		})
		if err != nil {
			return err
		}
		if written == 0 {
			return internal.ErrNoRecords
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", written, outputDir))
		return nil
	},
}

// exportSnapshot renders one archived session into dir
func exportSnapshot(snap *internal.Snapshot, scope internal.ExportScope, format, dir string, now time.Time) (string, error) {
	doc, err := internal.NewExportDocument(snap.ToSession(), scope, now)
	if err != nil {
		return "", err
	}
	artifact, err := export.Render(doc, format)
	if err != nil {
		return "", err
	}
	return export.WriteFile(dir, artifact)
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, jsonl, md, yaml)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&privileged, "privileged", false, "Export only privileged authors' records")
	exportCmd.Flags().BoolVar(&allSession, "all", false, "Export every archived session")
}
