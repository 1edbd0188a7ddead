package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeNode is an in-memory Node. Queries match by exact selector string.
type FakeNode struct {
	doc      *FakeDocument
	text     string
	attrs    map[string]string
	children map[string]*FakeNode
	metrics  ScrollMetrics
	marks    []string
	// ResetTopAfter makes the next n SetScrollTop(0) calls leave Top unchanged
	ResetTopAfter int
}

// NewFakeNode creates a node with text
func NewFakeNode(text string) *FakeNode {
	return &FakeNode{
		text:     text,
		attrs:    make(map[string]string),
		children: make(map[string]*FakeNode),
	}
}

// WithAttr sets an attribute and returns the node
func (n *FakeNode) WithAttr(name, value string) *FakeNode {
	n.attrs[name] = value
	return n
}

// WithChild registers child under selector and returns the node
func (n *FakeNode) WithChild(selector string, child *FakeNode) *FakeNode {
	n.children[selector] = child
	return n
}

// WithMetrics sets scroll metrics and returns the node
func (n *FakeNode) WithMetrics(m ScrollMetrics) *FakeNode {
	n.metrics = m
	return n
}

func (n *FakeNode) lock() func() {
	if n.doc == nil {
		return func() {}
	}
	n.doc.mu.Lock()
	return n.doc.mu.Unlock
}

func (n *FakeNode) Query(ctx context.Context, selector string) (Node, error) {
	defer n.lock()()
	if strings.Contains(selector, "<invalid>") {
		return nil, fmt.Errorf("invalid selector %q", selector)
	}
	child, ok := n.children[selector]
	if !ok {
		return nil, nil
	}
	child.doc = n.doc
	return child, nil
}

func (n *FakeNode) Text(ctx context.Context) (string, error) {
	defer n.lock()()
	return n.text, nil
}

func (n *FakeNode) Attr(ctx context.Context, name string) (string, bool, error) {
	defer n.lock()()
	v, ok := n.attrs[name]
	return v, ok, nil
}

func (n *FakeNode) SetAttr(ctx context.Context, name, value string) error {
	defer n.lock()()
	n.attrs[name] = value
	return nil
}

func (n *FakeNode) ScrollMetrics(ctx context.Context) (ScrollMetrics, error) {
	defer n.lock()()
	return n.metrics, nil
}

func (n *FakeNode) SetScrollTop(ctx context.Context, top float64) error {
	defer n.lock()()
	if n.ResetTopAfter > 0 {
		n.ResetTopAfter--
		return nil
	}
	n.metrics.Top = top
	return nil
}

func (n *FakeNode) ScrollBy(ctx context.Context, dy float64) error {
	defer n.lock()()
	n.metrics.Top += dy
	return nil
}

func (n *FakeNode) Mark(ctx context.Context, class string, d time.Duration) error {
	defer n.lock()()
	n.marks = append(n.marks, class)
	return nil
}

// Marks returns the classes applied to the node
func (n *FakeNode) Marks() []string {
	defer n.lock()()
	return append([]string(nil), n.marks...)
}

// AttrValue returns an attribute without a context
func (n *FakeNode) AttrValue(name string) string {
	defer n.lock()()
	return n.attrs[name]
}

// FakeDocument is an in-memory Document keyed by selector string
type FakeDocument struct {
	mu       sync.Mutex
	lists    map[string][]*FakeNode
	root     *FakeNode
	watchers []chan struct{}
}

// NewFakeDocument creates an empty document with a non-scrolling root
func NewFakeDocument() *FakeDocument {
	d := &FakeDocument{lists: make(map[string][]*FakeNode)}
	d.root = NewFakeNode("")
	d.root.doc = d
	return d
}

// Set replaces the nodes matched by selector
func (d *FakeDocument) Set(selector string, nodes ...*FakeNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range nodes {
		n.doc = d
	}
	d.lists[selector] = nodes
}

// Append adds nodes to selector and signals watchers
func (d *FakeDocument) Append(selector string, nodes ...*FakeNode) {
	d.mu.Lock()
	for _, n := range nodes {
		n.doc = d
	}
	d.lists[selector] = append(d.lists[selector], nodes...)
	d.mu.Unlock()
	d.Mutate()
}

// Mutate notifies every watcher of a structural change
func (d *FakeDocument) Mutate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// RootNode returns the document root
func (d *FakeDocument) RootNode() *FakeNode {
	return d.root
}

func (d *FakeDocument) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(selector, "<invalid>") {
		return nil, fmt.Errorf("invalid selector %q", selector)
	}
	nodes := d.lists[selector]
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	return out, nil
}

func (d *FakeDocument) Query(ctx context.Context, selector string) (Node, error) {
	nodes, err := d.QueryAll(ctx, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

func (d *FakeDocument) Root(ctx context.Context) (Node, error) {
	return d.root, nil
}

func (d *FakeDocument) Watch(ctx context.Context, node Node) (<-chan struct{}, error) {
	in := make(chan struct{}, 1)
	out := make(chan struct{})
	d.mu.Lock()
	d.watchers = append(d.watchers, in)
	d.mu.Unlock()

	go func() {
		defer close(out)
		defer d.unwatch(in)
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *FakeDocument) unwatch(ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.watchers {
		if w == ch {
			d.watchers = append(d.watchers[:i], d.watchers[i+1:]...)
			return
		}
	}
}

// Watchers returns the number of live watches
func (d *FakeDocument) Watchers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers)
}

// NewFakeMessage builds a message node matching the default selectors
func NewFakeMessage(id, username, content string) *FakeNode {
	n := NewFakeNode(username + " " + content)
	if id != "" {
		n.WithAttr(AttrNativeItemID, id)
	}
	if username != "" {
		n.WithChild(DefaultUsernameSelectors[0], NewFakeNode(username))
	}
	if content != "" {
		n.WithChild(DefaultContentSelectors[0], NewFakeNode(content))
	}
	return n
}

// MemoryKV is an in-memory KVStore
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   int
	PutErr error
}

// NewMemoryKV creates an empty MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) List(ctx context.Context, prefix string) ([]KeyValuePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []KeyValuePair
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KeyValuePair{Key: k, Value: string(v)})
		}
	}
	return out, nil
}

func (m *MemoryKV) Close() error { return nil }

// Puts returns how many successful writes happened
func (m *MemoryKV) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// RecordingNotifier captures notifications for assertions
type RecordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	progress []int
	ended    []int
}

func (r *RecordingNotifier) Status(message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, string(severity)+": "+message)
}

func (r *RecordingNotifier) Progress(count int, authorCounts map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, count)
}

func (r *RecordingNotifier) SessionEnded(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, count)
}

// Statuses returns the recorded status lines as "severity: message"
func (r *RecordingNotifier) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// ProgressCounts returns the counts of every progress update
func (r *RecordingNotifier) ProgressCounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress...)
}

// Ended returns the counts of every sessionEnded notification
func (r *RecordingNotifier) Ended() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ended...)
}

// FastPacing returns pacing with every wait collapsed for tests
func FastPacing() Pacing {
	return Pacing{
		TickMin:       5 * time.Millisecond,
		TickMax:       10 * time.Millisecond,
		MutationRate:  1000,
		MutationBurst: 1,
		TopAttempts:   3,
		StepMin:       300,
		StepMax:       500,
		CooldownEvery: 50,
		ProgressEvery: 10,
	}
}

// CreateTestDocument creates an export document with sample records
func CreateTestDocument(scope ExportScope) *ExportDocument {
	s := NewSession([]string{"curret"}, []string{"admin"}, 100, time.UnixMilli(1700000000000))
	for i, u := range []string{"Curret#0001", "AdminCurret", "Curret#0001"} {
		r := Record{
			ID:          fmt.Sprintf("item-%d", i),
			Username:    u,
			Content:     fmt.Sprintf("post **%d**", i),
			Timestamp:   "2024-01-01T00:00:00.000Z",
			CollectedAt: "2024-01-01T00:00:01.000Z",
			SessionID:   s.ID,
		}
		s.Records = append(s.Records, r)
		s.AuthorCounts[u]++
	}
	doc, _ := NewExportDocument(s, scope, time.UnixMilli(1700000100000))
	return doc
}
