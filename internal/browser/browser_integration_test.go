//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/browser"
)

const feedPage = `<html><head><style>
.scroller { height: 200px; overflow-y: auto; }
.message-item { height: 120px; }
</style></head><body>
<div class="scroller" id="feed">
  <div class="message-item" data-list-item-id="chat-messages-1">
    <span class="username">Curret#0001</span>
    <time datetime="2024-01-01T00:00:00.000Z">Today</time>
    <div class="markup">first post</div>
  </div>
  <div class="message-item" data-list-item-id="chat-messages-2">
    <span class="username">someone else</span>
    <div class="markup">ignored</div>
  </div>
  <div class="message-item">
    <span class="username">Curret#0001</span>
    <div class="markup">no native id</div>
  </div>
</div>
</body></html>`

const appendJS = `() => {
	const el = document.createElement("div");
	el.className = "message-item";
	el.setAttribute("data-list-item-id", "chat-messages-late");
	el.innerHTML = '<span class="username">Curret#0001</span><div class="markup">late post</div>';
	document.getElementById("feed").appendChild(el);
}`

func TestCollectFromLivePage_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedPage)
	}))
	defer ts.Close()

	m := browser.NewManager(browser.Options{Headless: true, PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer func() {
		if err := m.Shutdown(); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	}()

	require.NoError(t, m.Start(ctx), "Failed to start browser")
	doc, err := m.Open(ctx, ts.URL)
	require.NoError(t, err)

	pacing := internal.FastPacing()
	pacing.MutationRate = 100
	indicator := browser.NewIndicator(doc)
	defer indicator.Close()
	engine := internal.NewEngine(doc, internal.NewMemoryKV(), internal.EngineOptions{Pacing: pacing, Notifier: indicator})
	defer engine.Dispose()

	resp := engine.Start([]string{"curret"}, 100, []string{"admin"})
	require.True(t, resp.Success, resp.Error)

	require.Eventually(t, func() bool {
		return len(engine.Snapshot().Records) == 2
	}, 20*time.Second, 50*time.Millisecond)

	_, err = doc.Page().Eval(appendJS)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(engine.Snapshot().Records) == 3
	}, 20*time.Second, 50*time.Millisecond)

	snap := engine.Snapshot()
	require.Equal(t, "chat-messages-1", snap.Records[0].ID)
	require.Equal(t, "2024-01-01T00:00:00.000Z", snap.Records[0].Timestamp)
	require.Regexp(t, `^msg_\d+_[0-9a-z]{9}$`, snap.Records[1].ID)
	require.Equal(t, "late post", snap.Records[2].Content)
	require.Equal(t, 3, snap.AuthorCounts["Curret#0001"])

	tagged, err := doc.Page().Eval(`() => document.querySelectorAll("[data-collector-id]").length`)
	require.NoError(t, err)
	require.Equal(t, 1, tagged.Value.Int())

	resp = engine.Stop()
	require.True(t, resp.Success, resp.Error)
	require.Equal(t, 3, resp.Count)

	require.Eventually(t, func() bool {
		res, err := doc.Page().Eval(`(id) => { const el = document.getElementById(id); return el ? el.dataset.state + "|" + el.textContent : ""; }`, browser.IndicatorID)
		return err == nil && res.Value.Str() == "stopped|Collection stopped · 3 collected"
	}, 5*time.Second, 50*time.Millisecond)
}
