package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/browser"
	"github.com/iksnae/feed-collector/internal/bus"
	"github.com/iksnae/feed-collector/internal/export"
	"github.com/spf13/cobra"
)

var (
	collectURL        string
	collectTargets    []string
	collectPrivileged []string
	collectLimit      int
	collectFormat     string
	collectOut        string
	collectNATS       string
	collectDebugger   string
	collectHeadless   bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect posts from a live feed page",
	Long: `Open (or attach to) the feed page and collect posts by the target authors.

An interrupted session (Ctrl-C, crash, closed terminal) resumes the next
time collect runs against the same storage.

Commands typed while collecting:
  start [authors] [limit]   start a new session (authors comma-separated)
  pause | resume            toggle pause
  stop                      end the session
  export                    write all records
  export-privileged         write privileged authors' records
  status                    show counts
  quit                      leave, keeping the session resumable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyCollectFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := export.NewExporter(cfg.Export.Format); err != nil {
			return err
		}

		kv, err := openStore()
		if err != nil {
			return err
		}
		defer kv.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := browser.NewManager(browser.FromConfig(cfg))
		defer func() {
			if err := mgr.Shutdown(); err != nil {
				internal.LogWarn("Failed to close browser: %v", err)
			}
		}()

		var doc *browser.Document
		if err := internal.ShowProgressWithSteps(ctx, []internal.ProgressStep{
			{Message: "Connecting to browser", Fn: func() error { return mgr.Start(ctx) }},
			{Message: "Opening feed page", Fn: func() (err error) {
				doc, err = mgr.Document(ctx, cfg.URL)
				return err
			}},
		}); err != nil {
			return err
		}

		var engine *internal.Engine
		ended := make(chan int, 1)
		indicator := browser.NewIndicator(doc)
		defer indicator.Close()
		notifier := internal.MultiNotifier{internal.TerminalNotifier{}, endedSignal(ended), indicator}

		var srv *bus.Server
		if cfg.NATS.URL != "" {
			nc, err := bus.Connect(cfg.NATS.URL, "feed-collector")
			if err != nil {
				return err
			}
			defer nc.Close()
			srv = bus.NewServer(nc, cfg.NATS.Prefix, bus.HandlerFunc(func(c internal.Command) internal.Response {
				return engine.Handle(c)
			}), cfg.Export.Format)
			notifier = append(notifier, srv.Notifier())
		}

		engine = internal.NewEngine(doc, kv, internal.EngineOptions{
			Selectors: cfg.Selectors,
			Pacing:    cfg.Pacing,
			Notifier:  notifier,
		})
		defer engine.Suspend()

		if srv != nil {
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() { _ = srv.Stop() }()
			internal.PrintInfo(fmt.Sprintf("Listening for commands on %s", bus.NewSubjects(cfg.NATS.Prefix).Command()))
		}

		if err := engine.Init(ctx); err != nil {
			return err
		}

		c := &console{engine: engine, cfg: cfg, out: cmd.OutOrStdout()}
		if snap := engine.Snapshot(); snap == nil || !snap.Collecting {
			if len(cfg.TargetAuthors) > 0 {
				c.dispatch("start")
			} else {
				internal.PrintInfo("No target authors configured; type: start <author,...> [limit]")
			}
		}

		lines := readLines(cmd.InOrStdin())
		for {
			select {
			case <-ctx.Done():
				internal.PrintInfo("Interrupted; the session will resume on the next run")
				return nil
			case n := <-ended:
				// Without a terminal or a bus nothing can start another session
				if lines == nil && srv == nil {
					internal.LogInfo("Session ended with %d record(s)", n)
					return nil
				}
			case line, ok := <-lines:
				if !ok {
					lines = nil
					snap := engine.Snapshot()
					if srv == nil && (snap == nil || !snap.Collecting) {
						return nil
					}
					continue
				}
				if c.dispatch(line) {
					return nil
				}
			}
		}
	},
}

func applyCollectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = collectURL
	}
	if flags.Changed("target") {
		cfg.TargetAuthors = collectTargets
	}
	if flags.Changed("privileged") {
		cfg.PrivilegedAuthors = collectPrivileged
	}
	if flags.Changed("limit") {
		cfg.Limit = collectLimit
	}
	if flags.Changed("format") {
		cfg.Export.Format = collectFormat
	}
	if flags.Changed("out") {
		cfg.Export.Dir = collectOut
	}
	if flags.Changed("nats") {
		cfg.NATS.URL = collectNATS
	}
	if flags.Changed("debugger-url") {
		cfg.DebuggerURL = collectDebugger
	}
	if flags.Changed("headless") {
		cfg.Headless = collectHeadless
	}
}

// readLines forwards stdin lines until EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// endedSignal reports session ends without blocking the engine
type endedSignal chan int

func (endedSignal) Status(string, internal.Severity) {}
func (endedSignal) Progress(int, map[string]int) {}
func (s endedSignal) SessionEnded(count int) {
	select {
	case s <- count:
	default:
	}
}

// commander is the part of the engine the console drives
type commander interface {
	Handle(cmd internal.Command) internal.Response
	Snapshot() *internal.Snapshot
}

// console maps typed lines to engine commands
type console struct {
	engine commander
	cfg    *internal.Config
	out    io.Writer
}

// dispatch runs one typed command and reports whether to quit
func (c *console) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "start":
		targets := c.cfg.TargetAuthors
		limit := c.cfg.Limit
		if len(fields) > 1 {
			targets = strings.Split(fields[1], ",")
		}
		if len(fields) > 2 {
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				internal.PrintError(fmt.Sprintf("Invalid limit %q", fields[2]))
				return false
			}
			limit = n
		}
		c.report(c.engine.Handle(internal.Command{
			Action:            internal.ActionStart,
			TargetAuthors:     targets,
			Limit:             limit,
			PrivilegedAuthors: c.cfg.PrivilegedAuthors,
		}))
	case "pause", "resume", "p":
		c.report(c.engine.Handle(internal.Command{Action: internal.ActionTogglePause}))
	case "stop":
		c.report(c.engine.Handle(internal.Command{Action: internal.ActionStop}))
	case "export", "e":
		c.write(c.engine.Handle(internal.Command{Action: internal.ActionExportAll}))
	case "export-privileged", "ep":
		c.write(c.engine.Handle(internal.Command{Action: internal.ActionExportPrivileged}))
	case "status":
		c.status()
	case "help", "?":
		fmt.Fprintln(c.out, "start [authors] [limit] | pause | resume | stop | export | export-privileged | status | quit")
	case "quit", "q", "exit":
		return true
	default:
		internal.PrintWarning(fmt.Sprintf("Unknown command %q (type help)", fields[0]))
	}
	return false
}

func (c *console) report(resp internal.Response) {
	if !resp.Success {
		internal.LogDebug("Command failed: %s", resp.Error)
		internal.PrintError(resp.Error)
	}
}

// write renders an export response into the export directory. Failed
// exports were already announced by the engine.
func (c *console) write(resp internal.Response) {
	if !resp.Success || resp.Document == nil {
		return
	}
	artifact, err := export.Render(resp.Document, c.cfg.Export.Format)
	if err != nil {
		internal.PrintError(err.Error())
		return
	}
	path, err := export.WriteFile(c.cfg.Export.Dir, artifact)
	if err != nil {
		internal.PrintError(err.Error())
		return
	}
	internal.PrintSuccess(fmt.Sprintf("Wrote %s", path))
}

func (c *console) status() {
	snap := c.engine.Snapshot()
	if snap == nil {
		fmt.Fprintln(c.out, "No session")
		return
	}
	state := "stopped"
	switch {
	case snap.Collecting && snap.Paused:
		state = "paused"
	case snap.Collecting:
		state = "collecting"
	}
	fmt.Fprintf(c.out, "Session %s: %s, %d/%d record(s)\n", snap.SessionID, state, snap.CollectedCount, snap.Limit)
	fmt.Fprint(c.out, internal.RenderAuthorCounts(snap.AuthorCounts))
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringVar(&collectURL, "url", "", "Feed page URL")
	collectCmd.Flags().StringSliceVarP(&collectTargets, "target", "t", nil, "Target author (repeatable or comma-separated)")
	collectCmd.Flags().StringSliceVar(&collectPrivileged, "privileged", nil, "Privileged author (repeatable or comma-separated)")
	collectCmd.Flags().IntVarP(&collectLimit, "limit", "n", internal.DefaultLimit, "Maximum records per session")
	collectCmd.Flags().StringVarP(&collectFormat, "format", "f", "json", "Export format: json, jsonl, md, yaml")
	collectCmd.Flags().StringVarP(&collectOut, "out", "o", ".", "Export directory")
	collectCmd.Flags().StringVar(&collectNATS, "nats", "", "NATS URL for the control bus")
	collectCmd.Flags().StringVar(&collectDebugger, "debugger-url", "", "Attach to a running browser's DevTools endpoint")
	collectCmd.Flags().BoolVar(&collectHeadless, "headless", false, "Run a launched browser headless")
}
