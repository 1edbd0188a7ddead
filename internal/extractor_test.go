package internal

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

func newTestExtractor(now time.Time) *Extractor {
	x := NewExtractor(NewResolver(NewFakeDocument(), DefaultSelectorSet()))
	x.now = func() time.Time { return now }
	return x
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	x := newTestExtractor(now)

	tests := []struct {
		name      string
		node      *FakeNode
		wantErr   string
		wantID    string
		wantTS    string
		wantBody  string
		wantUser  string
	}{
		{
			name:     "native id and datetime",
			node:     NewFakeMessage("chat-messages-1", "Curret", "  hello  ").WithChild(`[class*="timestamp"]`, NewFakeNode("Today").WithAttr("datetime", "2024-04-30T10:00:00.000Z")),
			wantID:   "chat-messages-1",
			wantTS:   "2024-04-30T10:00:00.000Z",
			wantBody: "hello",
			wantUser: "Curret",
		},
		{
			name:     "timestamp text fallback",
			node:     NewFakeMessage("m2", "Curret", "hi").WithChild(`time`, NewFakeNode(" 12:01 ")),
			wantID:   "m2",
			wantTS:   "12:01",
			wantBody: "hi",
			wantUser: "Curret",
		},
		{
			name:     "timestamp falls back to now",
			node:     NewFakeMessage("m3", "Curret", "hi"),
			wantID:   "m3",
			wantTS:   "2024-05-01T12:00:00.000Z",
			wantBody: "hi",
			wantUser: "Curret",
		},
		{
			name:     "plain id attribute",
			node:     NewFakeMessage("", "Curret", "hi").WithAttr("id", "post-9"),
			wantID:   "post-9",
			wantTS:   "2024-05-01T12:00:00.000Z",
			wantBody: "hi",
			wantUser: "Curret",
		},
		{
			name:     "content falls back to root text",
			node:     NewFakeMessage("m4", "Curret", ""),
			wantID:   "m4",
			wantTS:   "2024-05-01T12:00:00.000Z",
			wantBody: "Curret",
			wantUser: "Curret",
		},
		{
			name:    "missing username",
			node:    NewFakeMessage("m5", "", "orphan"),
			wantErr: "username",
		},
		{
			name:    "blank content and root",
			node:    NewFakeNode("   ").WithAttr(AttrNativeItemID, "m6").WithChild(DefaultUsernameSelectors[0], NewFakeNode("Curret")).WithChild(DefaultContentSelectors[0], NewFakeNode(" ")),
			wantErr: "content",
		},
		{
			name:    "blank content element keeps root text out",
			node:    NewFakeNode("Curret Today at 12:00").WithAttr(AttrNativeItemID, "m7").WithChild(DefaultUsernameSelectors[0], NewFakeNode("Curret")).WithChild(DefaultContentSelectors[0], NewFakeNode("  ")),
			wantErr: "content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := x.Extract(ctx, tt.node, "sess")
			if tt.wantErr != "" {
				var xerr *ExtractionError
				if !errors.As(err, &xerr) || xerr.Field != tt.wantErr {
					t.Fatalf("Extract() error = %v, want ExtractionError[%s]", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if rec.ID != tt.wantID || rec.Timestamp != tt.wantTS || rec.Content != tt.wantBody || rec.Username != tt.wantUser {
				t.Errorf("Extract() = %+v", rec)
			}
			if rec.SessionID != "sess" || rec.CollectedAt != "2024-05-01T12:00:00.000Z" {
				t.Errorf("Extract() session/collectedAt = %q/%q", rec.SessionID, rec.CollectedAt)
			}
		})
	}
}

func TestExtractor_SyntheticIdentityIsStable(t *testing.T) {
	ctx := context.Background()
	x := newTestExtractor(time.UnixMilli(1700000000123))
	node := NewFakeMessage("", "Curret", "hi")

	first, err := x.Identity(ctx, node, x.now())
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if !regexp.MustCompile(`^msg_1700000000123_[0-9a-z]{9}$`).MatchString(first) {
		t.Errorf("synthetic id %q has unexpected shape", first)
	}
	if node.AttrValue(AttrIdentityTag) != first {
		t.Error("synthetic id should be written back as the identity tag")
	}

	second, err := x.Identity(ctx, node, time.UnixMilli(1800000000000))
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if second != first {
		t.Errorf("rescan produced id %q, want %q", second, first)
	}
}

func TestExtractor_SyntheticIdentityConcurrent(t *testing.T) {
	ctx := context.Background()
	x := newTestExtractor(time.UnixMilli(1700000000123))
	shape := regexp.MustCompile(`^msg_1700000000123_[0-9a-z]{9}$`)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = x.Identity(ctx, NewFakeMessage("", "Curret", "hi"), x.now())
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("Identity() error = %v", errs[i])
		}
		if !shape.MatchString(id) {
			t.Errorf("synthetic id %q has unexpected shape", id)
		}
		if seen[id] {
			t.Errorf("synthetic id %q issued twice", id)
		}
		seen[id] = true
	}
}
