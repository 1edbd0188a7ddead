package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/bus"
	"github.com/iksnae/feed-collector/internal/export"
	"github.com/spf13/cobra"
)

var (
	ctlNATS       string
	ctlTargets    []string
	ctlPrivileged []string
	ctlLimit      int
	ctlFormat     string
	ctlOut        string
	ctlTimeout    time.Duration
)

var ctlActions = map[string]string{
	"start":             internal.ActionStart,
	"pause":             internal.ActionTogglePause,
	"resume":            internal.ActionTogglePause,
	"toggle":            internal.ActionTogglePause,
	"stop":              internal.ActionStop,
	"export":            internal.ActionExportAll,
	"export-privileged": internal.ActionExportPrivileged,
}

// ctlCmd represents the ctl command
var ctlCmd = &cobra.Command{
	Use:   "ctl <start|pause|resume|stop|export|export-privileged|watch>",
	Short: "Control a running collector over NATS",
	Long: `Send a command to a collector started with --nats, or watch its events.

Exports are rendered by the collector and written locally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("nats") {
			cfg.NATS.URL = ctlNATS
		}
		if cfg.NATS.URL == "" {
			return fmt.Errorf("no NATS URL configured (use --nats or nats.url)")
		}

		nc, err := bus.Connect(cfg.NATS.URL, "feed-collector-ctl")
		if err != nil {
			return err
		}
		defer nc.Close()
		client := bus.NewClient(nc, cfg.NATS.Prefix)

		if args[0] == "watch" {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return client.Watch(ctx, bus.EventHandlers{
				Status:   func(ev bus.StatusEvent) { internal.PrintStatus(ev.Message, ev.Severity) },
				Progress: func(ev bus.ProgressEvent) { internal.TerminalNotifier{}.Progress(ev.Count, ev.AuthorCounts) },
				Ended:    func(ev bus.EndedEvent) { internal.TerminalNotifier{}.SessionEnded(ev.Count) },
			})
		}

		command, err := ctlCommand(args[0])
		if err != nil {
			return err
		}
		if command.Action == internal.ActionStart {
			command.TargetAuthors = cfg.TargetAuthors
			command.PrivilegedAuthors = cfg.PrivilegedAuthors
			command.Limit = cfg.Limit
			if cmd.Flags().Changed("target") {
				command.TargetAuthors = ctlTargets
			}
			if cmd.Flags().Changed("privileged") {
				command.PrivilegedAuthors = ctlPrivileged
			}
			if cmd.Flags().Changed("limit") {
				command.Limit = ctlLimit
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
		defer cancel()
		reply, err := client.Send(ctx, command, ctlFormat)
		if err != nil {
			return err
		}
		if !reply.Success {
			return fmt.Errorf("%s failed: %s", args[0], reply.Error)
		}

		if reply.Artifact != nil {
			path, err := export.WriteFile(ctlOut, reply.Artifact)
			if err != nil {
				return err
			}
			internal.PrintSuccess(fmt.Sprintf("Wrote %d record(s) to %s", reply.Count, path))
			return nil
		}
		msg := reply.Message
		if msg == "" {
			msg = "OK"
		}
		internal.PrintSuccess(msg)
		return nil
	},
}

// ctlCommand maps a ctl verb to an engine command
func ctlCommand(verb string) (internal.Command, error) {
	action, ok := ctlActions[verb]
	if !ok {
		return internal.Command{}, fmt.Errorf("unknown command %q", verb)
	}
	return internal.Command{Action: action}, nil
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.Flags().StringVar(&ctlNATS, "nats", "", "NATS URL (default: nats.url from config)")
	ctlCmd.Flags().StringSliceVarP(&ctlTargets, "target", "t", nil, "Target author for start")
	ctlCmd.Flags().StringSliceVar(&ctlPrivileged, "privileged", nil, "Privileged author for start")
	ctlCmd.Flags().IntVarP(&ctlLimit, "limit", "n", internal.DefaultLimit, "Record limit for start")
	ctlCmd.Flags().StringVarP(&ctlFormat, "format", "f", "", "Export format (default: the collector's)")
	ctlCmd.Flags().StringVarP(&ctlOut, "out", "o", ".", "Directory for exported files")
	ctlCmd.Flags().DurationVar(&ctlTimeout, "timeout", 5*time.Second, "Reply timeout")
}
