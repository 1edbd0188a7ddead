package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/browser"
	"github.com/iksnae/feed-collector/internal/bus"
	"github.com/spf13/cobra"
)

var healthcheckBrowser bool

var (
	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	infoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("62")).
		Bold(true).
		Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the collector can run with the current configuration",
	Long: `Check the health of feed-collector by verifying:
  • The configuration is valid
  • Storage opens and its sessions load
  • The browser starts or the DevTools endpoint answers (--browser)
  • The NATS server is reachable (when nats.url is set)

Use --verbose for the resolved paths and subjects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealthcheck(cmd.Context(), cmd.OutOrStdout(), healthcheckBrowser)
	},
}

func runHealthcheck(ctx context.Context, w io.Writer, checkBrowser bool) error {
	fmt.Fprintln(w, sectionStyle.Render("🔍 Feed Collector Health Check"))
	fmt.Fprintln(w)
	failed := 0
	fail := func(msg string, err error) {
		failed++
		fmt.Fprintln(w, errorStyle.Render("❌ "+msg+":"), err)
	}

	fmt.Fprintln(w, infoStyle.Render("Step 1: Validating configuration..."))
	if err := cfg.Validate(); err != nil {
		fail("Invalid configuration", err)
	} else {
		fmt.Fprintln(w, successStyle.Render("✅ Configuration valid"))
		if verbose {
			fmt.Fprintf(w, "   URL: %s\n", cfg.URL)
			fmt.Fprintf(w, "   Targets: %v (limit %d)\n", cfg.TargetAuthors, cfg.Limit)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, infoStyle.Render("Step 2: Opening storage..."))
	sessions := -1
	if kv, err := openStore(); err != nil {
		fail("Failed to open storage", err)
	} else {
		snaps, err := internal.NewStateStore(kv).ListSessions(ctx)
		_ = kv.Close()
		if err != nil {
			fail("Failed to load sessions", err)
		} else {
			sessions = len(snaps)
			fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✅ Storage open, %d session(s) archived", sessions)))
		}
		if verbose {
			fmt.Fprintf(w, "   Backend: %s\n", cfg.Storage.Backend)
			fmt.Fprintf(w, "   Path: %s\n", cfg.Storage.Path)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, infoStyle.Render("Step 3: Checking browser..."))
	if !checkBrowser {
		fmt.Fprintln(w, warningStyle.Render("⚠️  Skipped (use --browser)"))
	} else {
		mgr := browser.NewManager(browser.FromConfig(cfg))
		bctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := mgr.Start(bctx)
		cancel()
		if err != nil {
			fail("Browser unavailable", err)
		} else {
			fmt.Fprintln(w, successStyle.Render("✅ Browser reachable"))
			if err := mgr.Shutdown(); err != nil {
				internal.LogWarn("Failed to close browser: %v", err)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, infoStyle.Render("Step 4: Checking control bus..."))
	if cfg.NATS.URL == "" {
		fmt.Fprintln(w, warningStyle.Render("⚠️  No NATS URL configured; the bus is disabled"))
	} else if nc, err := bus.Connect(cfg.NATS.URL, "feed-collector-healthcheck"); err != nil {
		fail("NATS unreachable", err)
	} else {
		rtt, err := nc.RTT()
		nc.Close()
		if err != nil {
			fail("NATS did not answer", err)
		} else {
			fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✅ NATS reachable (rtt %s)", rtt.Round(time.Microsecond))))
			if verbose {
				fmt.Fprintf(w, "   Command subject: %s\n", bus.NewSubjects(cfg.NATS.Prefix).Command())
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionStyle.Render("📊 Summary"))
	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("❌ Health check failed (%d problem(s))", failed)))
		return fmt.Errorf("health check failed: %d problem(s)", failed)
	}
	fmt.Fprintln(w, successStyle.Render("✅ Health check passed!"))
	if sessions == 0 {
		fmt.Fprintln(w, "   • No sessions collected yet")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckBrowser, "browser", false, "Also start the browser or probe the DevTools endpoint")
}
