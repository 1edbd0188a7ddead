package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iksnae/feed-collector/testutil"
)

const waitFor = 2 * time.Second
const pollEvery = 5 * time.Millisecond

func newTestEngine(t *testing.T, doc *FakeDocument, kv KVStore) (*Engine, *RecordingNotifier) {
	t.Helper()
	rec := &RecordingNotifier{}
	e := NewEngine(doc, kv, EngineOptions{
		Selectors: DefaultSelectorSet(),
		Pacing:    FastPacing(),
		Notifier:  rec,
	})
	return e, rec
}

func feedOf(n int, prefix, user string) []*FakeNode {
	nodes := make([]*FakeNode, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, NewFakeMessage(fmt.Sprintf("%s-%d", prefix, i), user, fmt.Sprintf("post %d", i)))
	}
	return nodes
}

func count(e *Engine) int {
	snap := e.Snapshot()
	if snap == nil {
		return 0
	}
	return snap.CollectedCount
}

func TestEngine_CommandValidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	e, _ := newTestEngine(t, NewFakeDocument(), NewMemoryKV())
	defer e.Dispose()

	tests := []struct {
		name string
		cmd  Command
		want error
	}{
		{"pause while idle", Command{Action: ActionTogglePause}, ErrNotCollecting},
		{"stop while idle", Command{Action: ActionStop}, ErrNotCollecting},
		{"export before start", Command{Action: ActionExportAll}, ErrNoRecords},
		{"unknown action", Command{Action: "launch"}, ErrUnknownAction},
		{"zero limit", Command{Action: ActionStart, TargetAuthors: []string{"a"}, Limit: 0}, ErrInvalidLimit},
		{"no targets", Command{Action: ActionStart, TargetAuthors: []string{" "}, Limit: 5}, ErrNoTargets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Handle(tt.cmd)
			require.False(t, resp.Success)
			require.Equal(t, tt.want.Error(), resp.Error)
			require.Nil(t, e.Snapshot())
		})
	}
}

func TestEngine_StartTwiceRejected(t *testing.T) {
	defer goleak.VerifyNone(t)
	e, rec := newTestEngine(t, NewFakeDocument(), NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	id := e.Snapshot().SessionID

	resp := e.Start([]string{"other"}, 10, nil)
	require.False(t, resp.Success)
	require.Equal(t, ErrAlreadyCollecting.Error(), resp.Error)
	require.Equal(t, id, e.Snapshot().SessionID)
	require.Contains(t, rec.Statuses(), "warning: Collection is already running")
}

func TestEngine_IdempotentAcceptance(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], append(feedOf(3, "c", "Curret#0001"), feedOf(2, "o", "Other")...)...)
	e, rec := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"CURRET"}, 100, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 3 }, waitFor, pollEvery)

	// Many more ticks over the unchanged DOM.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 3, count(e))
	require.Equal(t, map[string]int{"Curret#0001": 3}, e.Snapshot().AuthorCounts)

	resp := e.Stop()
	require.True(t, resp.Success)
	require.Equal(t, 3, resp.Count)
	require.Equal(t, []int{3}, rec.Ended())
	require.Equal(t, StateIdle, e.State())
	require.Zero(t, doc.Watchers())
}

func TestEngine_SyntheticIdsDedup(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	nodes := []*FakeNode{NewFakeMessage("", "Curret", "a"), NewFakeMessage("", "Curret", "b")}
	doc.Set(DefaultMessageSelectors[0], nodes...)
	e, _ := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 100, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 2, count(e))

	snap := e.Snapshot()
	require.Equal(t, nodes[0].AttrValue(AttrIdentityTag), snap.Records[0].ID)
}

func TestEngine_LimitAutoStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(5, "c", "curret")...)
	kv := NewMemoryKV()
	e, rec := newTestEngine(t, doc, kv)
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 3, nil).Success)
	require.Eventually(t, func() bool { return len(rec.Ended()) == 1 }, waitFor, pollEvery)

	snap := e.Snapshot()
	require.Equal(t, 3, snap.CollectedCount)
	require.False(t, snap.Collecting)
	require.Equal(t, StateIdle, e.State())
	require.Contains(t, rec.Statuses(), "success: Limit of 3 records reached")

	stored, ok, err := NewStateStore(kv).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, stored.Collecting)
	require.Len(t, stored.Records, 3)

	// Limit stop is final; more items do not change anything.
	doc.Append(DefaultMessageSelectors[0], feedOf(3, "late", "curret")...)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 3, count(e))
}

func TestEngine_ProgressEveryTenth(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(25, "c", "curret")...)
	e, rec := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 100, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 25 }, waitFor, pollEvery)
	require.Equal(t, []int{10, 20}, rec.ProgressCounts())
}

func TestEngine_PauseGating(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(1, "c", "curret")...)
	e, rec := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 100, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 1 }, waitFor, pollEvery)

	resp := e.TogglePause()
	require.True(t, resp.Success)
	require.Equal(t, "Collection paused", resp.Message)
	require.True(t, e.Snapshot().Paused)
	require.Equal(t, StatePaused, e.State())

	doc.Append(DefaultMessageSelectors[0], feedOf(4, "p", "curret")...)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, count(e))

	require.True(t, e.TogglePause().Success)
	require.Eventually(t, func() bool { return count(e) == 5 }, waitFor, pollEvery)
	require.Contains(t, rec.Statuses(), "info: Collection resumed")
}

func TestEngine_PauseBeforeArm(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(2, "c", "curret")...)
	rec := &RecordingNotifier{}
	pacing := FastPacing()
	pacing.StartDelayMin, pacing.StartDelayMax = 50*time.Millisecond, 50*time.Millisecond
	e := NewEngine(doc, NewMemoryKV(), EngineOptions{Pacing: pacing, Notifier: rec})
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.True(t, e.TogglePause().Success)

	require.Eventually(t, func() bool { return e.State() == StatePaused }, waitFor, pollEvery)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, count(e))
}

func TestEngine_StopDuringStartDelay(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(2, "c", "curret")...)
	pacing := FastPacing()
	pacing.StartDelayMin, pacing.StartDelayMax = time.Hour, time.Hour
	e := NewEngine(doc, NewMemoryKV(), EngineOptions{Pacing: pacing})
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.True(t, e.Stop().Success)
	require.Equal(t, StateIdle, e.State())
	require.Equal(t, 0, count(e))
}

func TestEngine_StaleScanRejected(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(2, "c", "curret")...)
	pacing := FastPacing()
	pacing.StartDelayMin, pacing.StartDelayMax = time.Hour, time.Hour
	e := NewEngine(doc, NewMemoryKV(), EngineOptions{Pacing: pacing})
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	require.True(t, e.Stop().Success)

	_, after := e.scan(context.Background(), gen)
	require.Zero(t, after)
	require.Equal(t, 0, count(e))
}

func TestEngine_ResumeFidelity(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, StateKey, []byte(testutil.SnapshotJSON("1700000000000", true, false, 2))))

	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0],
		NewFakeMessage("item-1700000000000-0", "Curret#0001", "post 0"),
		NewFakeMessage("item-1700000000000-1", "Admin Curret", "post 1"),
		NewFakeMessage("fresh", "Curret#0001", "new"),
	)
	e, rec := newTestEngine(t, doc, kv)
	defer e.Dispose()

	require.NoError(t, e.Init(ctx))
	require.Equal(t, []int{2}, rec.ProgressCounts()[:1])
	require.Eventually(t, func() bool { return count(e) == 3 }, waitFor, pollEvery)
	time.Sleep(30 * time.Millisecond)

	snap := e.Snapshot()
	require.Equal(t, 3, snap.CollectedCount)
	require.Equal(t, "1700000000000", snap.SessionID)
	require.Equal(t, "item-1700000000000-0", snap.Records[0].ID)
	require.Equal(t, "fresh", snap.Records[2].ID)
	require.Equal(t, 2, snap.AuthorCounts["Curret#0001"])
}

func TestEngine_ResumePaused(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, StateKey, []byte(testutil.SnapshotJSON("1700000000000", true, true, 1))))

	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], NewFakeMessage("new", "curret", "x"))
	e, _ := newTestEngine(t, doc, kv)
	defer e.Dispose()

	require.NoError(t, e.Init(ctx))
	require.Eventually(t, func() bool { return e.State() == StatePaused }, waitFor, pollEvery)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, count(e))

	require.True(t, e.TogglePause().Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
}

func TestEngine_InitIgnoresFinishedSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, StateKey, []byte(testutil.SnapshotJSON("1", false, false, 2))))

	e, _ := newTestEngine(t, NewFakeDocument(), kv)
	defer e.Dispose()

	require.NoError(t, e.Init(ctx))
	require.Nil(t, e.Snapshot())
	require.Equal(t, StateIdle, e.State())
}

func TestEngine_Exports(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0],
		NewFakeMessage("1", "Curret", "a"),
		NewFakeMessage("2", "AdminCurret", "b"),
	)
	e, rec := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 100, []string{"admin"}).Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
	require.True(t, e.Stop().Success)

	all := e.Handle(Command{Action: ActionExportAll})
	require.True(t, all.Success)
	require.Equal(t, 2, all.Document.Metadata.TotalRecords)
	require.Equal(t, ScopeAll, all.Document.Metadata.Scope)

	priv := e.Handle(Command{Action: ActionExportPrivileged})
	require.True(t, priv.Success)
	require.Len(t, priv.Document.Records, 1)
	require.Equal(t, "AdminCurret", priv.Document.Records[0].Username)
	require.Equal(t, "feed_records_"+all.Document.Metadata.SessionID+"_privileged", priv.Document.BaseName())
	require.Contains(t, rec.Statuses(), "success: Exported 2 record(s)")
}

func TestEngine_ExportEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)
	e, rec := newTestEngine(t, NewFakeDocument(), NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	resp := e.ExportAll()
	require.False(t, resp.Success)
	require.Nil(t, resp.Document)
	require.Contains(t, rec.Statuses(), "error: No records to export")

	resp = e.ExportPrivileged()
	require.False(t, resp.Success)
	require.Contains(t, rec.Statuses(), "warning: No privileged records to export")
}

func TestEngine_PersistenceFailureIsNotFatal(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(2, "c", "curret")...)
	kv := NewMemoryKV()
	kv.PutErr = errors.New("disk full")
	e, _ := newTestEngine(t, doc, kv)
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
	require.True(t, e.Stop().Success)
	require.Zero(t, kv.Puts())
}

func TestEngine_MarksAcceptedItems(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	plain := NewFakeMessage("1", "Curret", "a")
	priv := NewFakeMessage("2", "AdminCurret", "b")
	other := NewFakeMessage("3", "Other", "c")
	doc.Set(DefaultMessageSelectors[0], plain, priv, other)
	e, _ := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, []string{"admin"}).Success)
	require.Eventually(t, func() bool { return len(priv.Marks()) == 1 }, waitFor, pollEvery)
	require.Equal(t, []string{HighlightClass}, plain.Marks())
	require.Equal(t, []string{PrivilegedHighlightClass}, priv.Marks())
	require.Empty(t, other.Marks())
}

func TestEngine_MutationTriggersScan(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	pacing := FastPacing()
	pacing.TickMin, pacing.TickMax = time.Hour, time.Hour
	e := NewEngine(doc, NewMemoryKV(), EngineOptions{Pacing: pacing})
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Eventually(t, func() bool { return doc.Watchers() == 1 }, waitFor, pollEvery)

	doc.Append(DefaultMessageSelectors[0], feedOf(2, "m", "curret")...)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
}

func TestEngine_RestartClearsSeen(t *testing.T) {
	defer goleak.VerifyNone(t)
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(2, "c", "curret")...)
	e, _ := newTestEngine(t, doc, NewMemoryKV())
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
	require.True(t, e.Stop().Success)

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 2 }, waitFor, pollEvery)
	require.True(t, e.Snapshot().Collecting)
}

func TestEngine_SuspendKeepsSessionResumable(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	doc := NewFakeDocument()
	doc.Set(DefaultMessageSelectors[0], feedOf(3, "s", "curret")...)

	e, rec := newTestEngine(t, doc, kv)
	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Eventually(t, func() bool { return count(e) == 3 }, waitFor, pollEvery)
	e.Suspend()

	require.Empty(t, rec.Ended())
	require.Equal(t, StateIdle, e.State())
	require.False(t, e.Start([]string{"curret"}, 10, nil).Success)

	store := NewStateStore(kv)
	snap, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, snap.Collecting)
	require.Equal(t, 3, snap.CollectedCount)

	doc.Append(DefaultMessageSelectors[0], NewFakeMessage("later", "curret", "after restart"))
	resumed, _ := newTestEngine(t, doc, kv)
	defer resumed.Dispose()
	require.NoError(t, resumed.Init(ctx))
	require.Eventually(t, func() bool { return count(resumed) == 4 }, waitFor, pollEvery)
	require.Equal(t, snap.SessionID, resumed.Snapshot().SessionID)
}

func TestEngine_SessionIDsIncreaseWithinOneMillisecond(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	fixed := time.UnixMilli(1700000000000)
	e := NewEngine(NewFakeDocument(), kv, EngineOptions{
		Pacing: FastPacing(),
		Now:    func() time.Time { return fixed },
	})
	defer e.Dispose()

	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	first := e.Snapshot().SessionID
	require.True(t, e.Stop().Success)
	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	second := e.Snapshot().SessionID

	require.Equal(t, "1700000000000", first)
	require.Equal(t, "1700000000001", second)

	sessions, err := NewStateStore(kv).ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestEngine_SessionIDFollowsRestoredSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, StateKey, []byte(testutil.SnapshotJSON("1700000000000", false, false, 1))))

	e := NewEngine(NewFakeDocument(), kv, EngineOptions{
		Pacing: FastPacing(),
		Now:    func() time.Time { return time.UnixMilli(1700000000000) },
	})
	defer e.Dispose()

	require.NoError(t, e.Init(ctx))
	require.True(t, e.Start([]string{"curret"}, 10, nil).Success)
	require.Equal(t, "1700000000001", e.Snapshot().SessionID)
}
