package internal

import (
	"context"
	"time"
)

// Role is a semantic part of the feed markup
type Role string

const (
	RoleMessage         Role = "message"
	RoleUsername        Role = "username"
	RoleContent         Role = "content"
	RoleTimestamp       Role = "timestamp"
	RoleScrollContainer Role = "scrollContainer"
)

// ScrollMetrics are the scroll extents of an element
type ScrollMetrics struct {
	Top          float64
	Height       float64
	ClientHeight float64
}

// Scrollable reports whether the element's content overflows its box
func (m ScrollMetrics) Scrollable() bool {
	return m.Height > m.ClientHeight
}

// Node is one live element of the feed document.
// Query returns a nil Node and nil error when nothing matches.
type Node interface {
	Query(ctx context.Context, selector string) (Node, error)
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, bool, error)
	SetAttr(ctx context.Context, name, value string) error
	ScrollMetrics(ctx context.Context) (ScrollMetrics, error)
	SetScrollTop(ctx context.Context, top float64) error
	ScrollBy(ctx context.Context, dy float64) error
	// Mark adds class to the element and removes it again after d.
	Mark(ctx context.Context, class string, d time.Duration) error
}

// Document is the live feed page
type Document interface {
	QueryAll(ctx context.Context, selector string) ([]Node, error)
	Query(ctx context.Context, selector string) (Node, error)
	Root(ctx context.Context) (Node, error)
	// Watch delivers a value whenever the subtree under node changes
	// structurally. The channel is closed once ctx is done.
	Watch(ctx context.Context, node Node) (<-chan struct{}, error)
}
