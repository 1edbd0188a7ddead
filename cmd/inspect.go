package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/browser"
	"github.com/spf13/cobra"
)

var (
	inspectURL      string
	inspectDebugger string
	inspectSample   int
	inspectStored   bool
)

const inspectTrimLen = 80

var inspectRoles = []internal.Role{
	internal.RoleScrollContainer,
	internal.RoleMessage,
	internal.RoleUsername,
	internal.RoleContent,
	internal.RoleTimestamp,
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Probe the feed page with the configured selectors",
	Long: `Inspect how the configured selector candidates match the live feed page.

For every role this prints each candidate and how many elements it matched.
Element roles (username, content, timestamp) are probed under the first
message. With --sample N the first N messages are extracted as a dry run;
messages without a native id are tagged the same way collect tags them.

With --stored the command lists the keys held in the configured storage
instead of opening a browser.

Examples:
  feed-collector inspect --url https://feed.example/channel
  feed-collector inspect --debugger-url ws://127.0.0.1:9222/... --sample 5
  feed-collector inspect --stored --backend file --storage ./state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectStored {
			kv, err := openStore()
			if err != nil {
				return err
			}
			defer kv.Close()
			return inspectStorage(cmd.Context(), kv, cmd.OutOrStdout())
		}

		if cmd.Flags().Changed("url") {
			cfg.URL = inspectURL
		}
		if cmd.Flags().Changed("debugger-url") {
			cfg.DebuggerURL = inspectDebugger
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
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
		return probeReport(ctx, doc, cfg.Selectors, inspectSample, cmd.OutOrStdout())
	},
}

// probeReport writes the match table for every role, then up to sample
// extracted records
func probeReport(ctx context.Context, doc internal.Document, selectors internal.SelectorSet, sample int, w io.Writer) error {
	resolver := internal.NewResolver(doc, selectors)

	var root internal.Node
	messages, err := resolver.Messages(ctx)
	if err == nil && len(messages) > 0 {
		root = messages[0]
	}

	fmt.Fprintln(w, sectionStyle.Render("Selectors"))
	resolved := 0
	for _, role := range inspectRoles {
		probes := resolver.Probe(ctx, role, root)
		fmt.Fprintln(w, infoStyle.Render(string(role)))
		hit := false
		for _, p := range probes {
			switch {
			case p.Err != nil:
				fmt.Fprintf(w, "  %s %s: %v\n", errorStyle.Render("✗"), p.Selector, p.Err)
			case p.Matches > 0:
				fmt.Fprintf(w, "  %s %s: %d\n", successStyle.Render("✓"), p.Selector, p.Matches)
				hit = true
			default:
				fmt.Fprintf(w, "  %s %s: 0\n", warningStyle.Render("·"), p.Selector)
			}
		}
		if hit {
			resolved++
		}
	}
	fmt.Fprintln(w)

	if sample > 0 && len(messages) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Sample"))
		x := internal.NewExtractor(resolver)
		shown := 0
		for _, m := range messages {
			if shown == sample {
				break
			}
			rec, err := x.Extract(ctx, m, "inspect")
			if err != nil {
				var exErr *internal.ExtractionError
				if errors.As(err, &exErr) {
					continue
				}
				return err
			}
			shown++
			fmt.Fprintf(w, "%s %s %s\n", idStyle.Render(rec.ID), authorStyle.Render(rec.Username), dateStyle.Render(rec.Timestamp))
			fmt.Fprintf(w, "  %s\n", trimLine(rec.Content, inspectTrimLen))
		}
		if shown == 0 {
			fmt.Fprintln(w, warningStyle.Render("No message could be extracted"))
		}
		fmt.Fprintln(w)
	}

	if resolved < len(inspectRoles) {
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%d of %d roles resolved", resolved, len(inspectRoles))))
	} else {
		fmt.Fprintln(w, successStyle.Render("All roles resolved"))
	}
	return nil
}

// inspectStorage lists the stored keys and the size of their values
func inspectStorage(ctx context.Context, kv internal.KVStore, w io.Writer) error {
	pairs, err := kv.List(ctx, "")
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		fmt.Fprintln(w, warningStyle.Render("Storage is empty"))
		return nil
	}
	fmt.Fprintln(w, sectionStyle.Render(fmt.Sprintf("%d key(s)", len(pairs))))
	for _, p := range pairs {
		fmt.Fprintf(w, "  %s %s\n", idStyle.Render(p.Key), countStyle.Render(fmt.Sprintf("%d bytes", len(p.Value))))
	}
	return nil
}

// trimLine keeps the first line of s, cut to max runes
func trimLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "..."
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectURL, "url", "", "Feed page URL")
	inspectCmd.Flags().StringVar(&inspectDebugger, "debugger-url", "", "Attach to a running browser's DevTools endpoint")
	inspectCmd.Flags().IntVar(&inspectSample, "sample", 0, "Extract the first N messages as a dry run")
	inspectCmd.Flags().BoolVar(&inspectStored, "stored", false, "List the keys held in storage instead")
}
