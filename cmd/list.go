package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/feed-collector/internal"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	authorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	Long:  `List every collection session saved in storage, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := openStore()
		if err != nil {
			return err
		}
		defer kv.Close()

		snaps, err := internal.NewStateStore(kv).ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		displaySessions(snaps, time.Now())
		return nil
	},
}

// sessionTime decodes a millisecond session id
func sessionTime(id string) (time.Time, bool) {
	ms, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func formatStarted(id string, now time.Time) string {
	t, ok := sessionTime(id)
	if !ok {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func sessionState(s *internal.Snapshot) string {
	switch {
	case s.Collecting && s.Paused:
		return "paused"
	case s.Collecting:
		return "collecting"
	default:
		return "stopped"
	}
}

func displaySessions(snaps []*internal.Snapshot, now time.Time) {
	if len(snaps) == 0 {
		fmt.Println(headerStyle.Render("📋 No sessions found"))
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(snaps))))
	fmt.Println()

	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Started")+"\t"+titleStyle.Render("State")+"\t"+titleStyle.Render("Records")+"\t"+titleStyle.Render("Targets")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 90))

	for _, s := range snaps {
		targets := strings.Join(s.TargetAuthors, ", ")
		if len(targets) > 30 {
			targets = targets[:27] + "..."
		}
		if targets == "" {
			targets = "—"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(s.SessionID),
			dateStyle.Render(formatStarted(s.SessionID, now)),
			sessionState(s),
			countStyle.Render(fmt.Sprintf("%d/%d", s.CollectedCount, s.Limit)),
			authorStyle.Render(targets),
		)
	}

	_ = w.Flush()
	fmt.Println()
	fmt.Println(idStyle.Render("💡 Tip: Use the ID (e.g., ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(snaps[0].SessionID) +
		idStyle.Render(") with `feed-collector show <id>` or `feed-collector export <id>`"))
}

func init() {
	rootCmd.AddCommand(listCmd)
}
