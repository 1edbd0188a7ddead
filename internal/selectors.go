package internal

import (
	"context"
	"strings"
)

// Feed markup changes often. Candidates are ordered most reliable first;
// update them here (or in the config file) when collection breaks.

var (
	DefaultMessageSelectors = []string{
		`[class*="message"]`,
		`[data-list-item-id*="messages"]`,
		`[role="article"]`,
		`[class*="messageGroup"]`,
	}
	DefaultUsernameSelectors = []string{
		`[class*="username"]`,
		`[id*="user-"]`,
		`[class*="author"]`,
		`[data-author-id]`,
	}
	DefaultContentSelectors = []string{
		`[class*="messageContent"]`,
		`[class*="contents"]`,
		`[class*="markup"]`,
	}
	DefaultTimestampSelectors = []string{
		`[class*="timestamp"]`,
		`time`,
	}
	DefaultScrollContainerSelectors = []string{
		`[class*="scroller"]`,
		`[class*="messagesWrapper"]`,
		`[class*="content"]`,
	}
)

// SelectorSet holds the candidate list for every role
type SelectorSet struct {
	Message         []string `mapstructure:"message" toml:"message"`
	Username        []string `mapstructure:"username" toml:"username"`
	Content         []string `mapstructure:"content" toml:"content"`
	Timestamp       []string `mapstructure:"timestamp" toml:"timestamp"`
	ScrollContainer []string `mapstructure:"scroll_container" toml:"scroll_container"`
}

// DefaultSelectorSet returns the built-in candidates
func DefaultSelectorSet() SelectorSet {
	return SelectorSet{
		Message:         append([]string(nil), DefaultMessageSelectors...),
		Username:        append([]string(nil), DefaultUsernameSelectors...),
		Content:         append([]string(nil), DefaultContentSelectors...),
		Timestamp:       append([]string(nil), DefaultTimestampSelectors...),
		ScrollContainer: append([]string(nil), DefaultScrollContainerSelectors...),
	}
}

// Candidates returns the candidates for role, falling back to defaults
func (s SelectorSet) Candidates(role Role) []string {
	pick := func(custom, defaults []string) []string {
		if len(custom) > 0 {
			return custom
		}
		return defaults
	}
	switch role {
	case RoleMessage:
		return pick(s.Message, DefaultMessageSelectors)
	case RoleUsername:
		return pick(s.Username, DefaultUsernameSelectors)
	case RoleContent:
		return pick(s.Content, DefaultContentSelectors)
	case RoleTimestamp:
		return pick(s.Timestamp, DefaultTimestampSelectors)
	case RoleScrollContainer:
		return pick(s.ScrollContainer, DefaultScrollContainerSelectors)
	}
	return nil
}

// Resolver finds role elements by trying candidates in order
type Resolver struct {
	doc       Document
	selectors SelectorSet
}

// NewResolver creates a new Resolver
func NewResolver(doc Document, selectors SelectorSet) *Resolver {
	return &Resolver{doc: doc, selectors: selectors}
}

// Messages returns the nodes of the first message candidate with any match
func (r *Resolver) Messages(ctx context.Context) ([]Node, error) {
	for _, sel := range r.selectors.Candidates(RoleMessage) {
		nodes, err := r.doc.QueryAll(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			LogDebug("Message selector %q failed: %v", sel, err)
			continue
		}
		if len(nodes) > 0 {
			return nodes, nil
		}
	}
	return nil, &ResolutionError{Role: RoleMessage}
}

// ScrollContainer returns the first candidate that genuinely scrolls, or
// the document root when none does.
func (r *Resolver) ScrollContainer(ctx context.Context) (Node, error) {
	for _, sel := range r.selectors.Candidates(RoleScrollContainer) {
		node, err := r.doc.Query(ctx, sel)
		if err != nil || node == nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		m, err := node.ScrollMetrics(ctx)
		if err != nil {
			continue
		}
		if m.Scrollable() {
			return node, nil
		}
	}
	root, err := r.doc.Root(ctx)
	if err != nil {
		return nil, &ResolutionError{Role: RoleScrollContainer, Err: err}
	}
	if root == nil {
		return nil, &ResolutionError{Role: RoleScrollContainer}
	}
	return root, nil
}

// Element returns the first element under root matching a role candidate
func (r *Resolver) Element(ctx context.Context, root Node, role Role) (Node, error) {
	for _, sel := range r.selectors.Candidates(role) {
		node, err := root.Query(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if node != nil {
			return node, nil
		}
	}
	return nil, &ResolutionError{Role: role}
}

// Text returns the trimmed text of the first role candidate under root
// whose text is not empty.
func (r *Resolver) Text(ctx context.Context, root Node, role Role) (string, error) {
	for _, sel := range r.selectors.Candidates(role) {
		node, err := root.Query(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if node == nil {
			continue
		}
		text, err := node.Text(ctx)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	return "", &ResolutionError{Role: role}
}

// Probe is how one candidate matched during Resolver.Probe
type Probe struct {
	Role     Role
	Selector string
	Matches  int
	Err      error
}

// Probe tries every candidate of role and reports the match count of each.
// Document-level roles query the document; the others query under root.
func (r *Resolver) Probe(ctx context.Context, role Role, root Node) []Probe {
	candidates := r.selectors.Candidates(role)
	probes := make([]Probe, 0, len(candidates))
	for _, sel := range candidates {
		p := Probe{Role: role, Selector: sel}
		switch {
		case role == RoleMessage || role == RoleScrollContainer:
			nodes, err := r.doc.QueryAll(ctx, sel)
			p.Matches, p.Err = len(nodes), err
		case root == nil:
			p.Err = &ResolutionError{Role: RoleMessage}
		default:
			node, err := root.Query(ctx, sel)
			if node != nil {
				p.Matches = 1
			}
			p.Err = err
		}
		probes = append(probes, p)
	}
	return probes
}
