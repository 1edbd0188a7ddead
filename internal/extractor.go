package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	// AttrNativeItemID is the feed's own list item identifier
	AttrNativeItemID = "data-list-item-id"
	// AttrIdentityTag is written on nodes that carry no native id
	AttrIdentityTag = "data-collector-id"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Extractor turns message roots into normalized records
type Extractor struct {
	resolver *Resolver
	now      func() time.Time
}

// NewExtractor creates a new Extractor
func NewExtractor(resolver *Resolver) *Extractor {
	return &Extractor{
		resolver: resolver,
		now:      time.Now,
	}
}

// Extract builds a record from root. It returns an *ExtractionError when
// root has no username or no content; callers skip those roots.
func (x *Extractor) Extract(ctx context.Context, root Node, sessionID string) (*Record, error) {
	username, err := x.resolver.Text(ctx, root, RoleUsername)
	if err != nil {
		return nil, &ExtractionError{Field: "username", Err: err}
	}

	content, err := x.resolver.Text(ctx, root, RoleContent)
	if err != nil {
		var rerr *ResolutionError
		if !errors.As(err, &rerr) {
			return nil, &ExtractionError{Field: "content", Err: err}
		}
		// root text is used only when no content element exists
		if _, eerr := x.resolver.Element(ctx, root, RoleContent); eerr == nil {
			return nil, &ExtractionError{Field: "content", Err: errors.New("empty content")}
		} else if !errors.As(eerr, &rerr) {
			return nil, &ExtractionError{Field: "content", Err: eerr}
		}
		text, terr := root.Text(ctx)
		if terr != nil {
			return nil, &ExtractionError{Field: "content", Err: terr}
		}
		content = strings.TrimSpace(text)
	}
	if content == "" {
		return nil, &ExtractionError{Field: "content", Err: errors.New("empty content")}
	}

	now := x.now()
	id, err := x.Identity(ctx, root, now)
	if err != nil {
		return nil, &ExtractionError{Field: "identity", Err: err}
	}

	return &Record{
		ID:          id,
		Username:    username,
		Content:     content,
		Timestamp:   x.timestamp(ctx, root, now),
		CollectedAt: formatTime(now),
		SessionID:   sessionID,
	}, nil
}

// Identity returns the stable id of root. Roots without a native id get a
// synthetic id that is written back as the identity tag so later scans of
// the same node agree.
func (x *Extractor) Identity(ctx context.Context, root Node, now time.Time) (string, error) {
	for _, attr := range []string{AttrNativeItemID, "id", AttrIdentityTag} {
		v, ok, err := root.Attr(ctx, attr)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}

	id := x.syntheticID(now)
	if err := root.SetAttr(ctx, AttrIdentityTag, id); err != nil {
		return "", fmt.Errorf("failed to tag node: %w", err)
	}
	return id, nil
}

func (x *Extractor) syntheticID(now time.Time) string {
	var b strings.Builder
	b.WriteString("msg_")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for i := 0; i < 9; i++ {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return b.String()
}

// timestamp prefers the datetime attribute, then the element text, then now
func (x *Extractor) timestamp(ctx context.Context, root Node, now time.Time) string {
	el, err := x.resolver.Element(ctx, root, RoleTimestamp)
	if err != nil {
		return formatTime(now)
	}
	if v, ok, err := el.Attr(ctx, "datetime"); err == nil && ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if text, err := el.Text(ctx); err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	return formatTime(now)
}
