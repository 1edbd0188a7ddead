package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/feed-collector/internal"
	"github.com/spf13/cobra"
)

var (
	showLimit  int
	showAuthor string
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	usernameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true).
			Padding(0, 1)

	privilegedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true).
			Padding(0, 1)

	recordContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show records of a session",
	Long:  `Display the records of an archived session. Without an id the latest session is shown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := openStore()
		if err != nil {
			return err
		}
		defer kv.Close()

		snap, err := resolveSession(cmd, internal.NewStateStore(kv), args)
		if err != nil {
			return err
		}
		displaySession(snap, showAuthor, showLimit)
		return nil
	},
}

// resolveSession loads the session named in args, or the newest one
func resolveSession(cmd *cobra.Command, store *internal.StateStore, args []string) (*internal.Snapshot, error) {
	if len(args) == 1 {
		snap, ok, err := store.LoadSession(cmd.Context(), args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", args[0], err)
		}
		if !ok {
			return nil, fmt.Errorf("session not found: %s", args[0])
		}
		return snap, nil
	}

	snaps, err := store.ListSessions(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no sessions found")
	}
	return snaps[0], nil
}

func displaySession(snap *internal.Snapshot, author string, limit int) {
	fmt.Println(sessionHeaderStyle.Render(fmt.Sprintf("💬 Session %s", snap.SessionID)))

	meta := []string{
		fmt.Sprintf("State: %s", sessionState(snap)),
		fmt.Sprintf("Records: %d/%d", snap.CollectedCount, snap.Limit),
		fmt.Sprintf("Targets: %s", strings.Join(snap.TargetAuthors, ", ")),
	}
	if len(snap.PrivilegedAuthors) > 0 {
		meta = append(meta, fmt.Sprintf("Privileged: %s", strings.Join(snap.PrivilegedAuthors, ", ")))
	}
	if t, ok := sessionTime(snap.SessionID); ok {
		meta = append(meta, fmt.Sprintf("Started: %s", t.Format("2006-01-02 15:04:05")))
	}
	fmt.Println(sessionMetaStyle.Render(strings.Join(meta, " • ")))
	fmt.Print(internal.RenderAuthorCounts(snap.AuthorCounts))
	fmt.Println()

	author = strings.ToLower(strings.TrimSpace(author))
	shown := 0
	for _, r := range snap.Records {
		if author != "" && !strings.Contains(strings.ToLower(r.Username), author) {
			continue
		}
		if limit > 0 && shown >= limit {
			fmt.Println(timestampStyle.Render(fmt.Sprintf("... %d more record(s) hidden (use --limit 0 to show all)", countMatching(snap.Records, author)-shown)))
			break
		}

		style := usernameStyle
		if internal.MatchesAuthor(r.Username, snap.PrivilegedAuthors) {
			style = privilegedStyle
		}
		fmt.Println(style.Render(r.Username) + " " + timestampStyle.Render(r.Timestamp))
		fmt.Println(recordContentStyle.Render(r.Content))
		shown++
	}
	if shown == 0 {
		fmt.Println(timestampStyle.Render("No records"))
	}
}

func countMatching(records []internal.Record, author string) int {
	if author == "" {
		return len(records)
	}
	n := 0
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Username), author) {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 50, "Maximum records to display (0 for all)")
	showCmd.Flags().StringVar(&showAuthor, "author", "", "Only show records whose username contains this")
}
