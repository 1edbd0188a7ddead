package cmd

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/iksnae/feed-collector/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so one Execute does not
// leak into the next
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns what it wrote
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

// seedStore archives sessions into a file store and returns its directory
func seedStore(t *testing.T, snaps ...*internal.Snapshot) string {
	t.Helper()
	dir := t.TempDir()
	kv, err := internal.OpenStore("file", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	store := internal.NewStateStore(kv)
	for _, s := range snaps {
		if err := store.Save(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// testSnapshot builds a stopped session started at ms with one record per
// username
func testSnapshot(ms int64, usernames ...string) *internal.Snapshot {
	s := internal.NewSession([]string{"curret"}, []string{"admin"}, 100, time.UnixMilli(ms))
	for i, u := range usernames {
		s.Records = append(s.Records, internal.Record{
			ID:          fmt.Sprintf("item-%d", i),
			Username:    u,
			Content:     fmt.Sprintf("post %d", i),
			Timestamp:   "2024-01-01T00:00:00.000Z",
			CollectedAt: "2024-01-01T00:00:01.000Z",
			SessionID:   s.ID,
		})
		s.AuthorCounts[u]++
	}
	return s.Snapshot()
}
