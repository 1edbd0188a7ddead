package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iksnae/feed-collector/internal"
)

const (
	jsRoot = `() => document.scrollingElement || document.documentElement`

	jsText = `function() { return this.textContent || ""; }`

	jsSetAttr = `function(name, value) { this.setAttribute(name, value); }`

	jsMetrics = `function() {
		return { top: this.scrollTop, height: this.scrollHeight, clientHeight: this.clientHeight };
	}`

	jsSetScrollTop = `function(top) { this.scrollTop = top; }`

	jsScrollBy = `function(dy) { this.scrollBy(0, dy); }`

	// jsObserve installs a MutationObserver on the element that counts
	// childList changes under window.__feedCollector[key].
	jsObserve = `function(key) {
		const reg = window.__feedCollector = window.__feedCollector || {};
		if (reg[key]) return true;
		const entry = { n: 0 };
		entry.observer = new MutationObserver((records) => { entry.n += records.length; });
		entry.observer.observe(this, { childList: true, subtree: true });
		reg[key] = entry;
		return true;
	}`

	// jsDrain returns and resets the counter, or -1 once the observer is gone
	jsDrain = `(key) => {
		const reg = window.__feedCollector || {};
		const entry = reg[key];
		if (!entry) return -1;
		const n = entry.n;
		entry.n = 0;
		return n;
	}`

	jsDisconnect = `(key) => {
		const reg = window.__feedCollector || {};
		if (reg[key]) { reg[key].observer.disconnect(); delete reg[key]; }
	}`

	jsMark = `function(cls, normal, privileged, ms) {
		if (!document.getElementById("feed-collector-style")) {
			const style = document.createElement("style");
			style.id = "feed-collector-style";
			style.textContent =
				"." + normal + " { outline: 2px solid #4caf50 !important; background: rgba(76,175,80,0.12) !important; }" +
				"." + privileged + " { outline: 2px solid #ff9800 !important; background: rgba(255,152,0,0.15) !important; }";
			document.head.appendChild(style);
		}
		this.classList.add(cls);
		setTimeout(() => this.classList.remove(cls), ms);
	}`

	// jsIndicator creates or updates the fixed status overlay
	jsIndicator = `(id, state, text) => {
		let el = document.getElementById(id);
		if (!el) {
			el = document.createElement("div");
			el.id = id;
			Object.assign(el.style, {
				position: "fixed", top: "12px", right: "12px", zIndex: "2147483647",
				padding: "6px 10px", borderRadius: "4px", color: "#fff",
				font: "12px/1.4 sans-serif", boxShadow: "0 2px 6px rgba(0,0,0,0.3)",
				pointerEvents: "none",
			});
			document.body.appendChild(el);
		}
		const colors = { collecting: "#4caf50", paused: "#ff9800", warning: "#ff9800", error: "#f44336", stopped: "#607d8b" };
		el.style.background = colors[state] || "#2196f3";
		el.dataset.state = state;
		el.textContent = text;
	}`
)

// IndicatorID is the element id of the on-page status overlay
const IndicatorID = "feed-collector-indicator"

// Document adapts a rod page to internal.Document
type Document struct {
	page *rod.Page
	poll time.Duration
	log  *zap.Logger
}

// NewDocument wraps page. Mutation counters are drained every poll.
func NewDocument(page *rod.Page, poll time.Duration) *Document {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Document{page: page, poll: poll, log: internal.Logger().Named("browser.document")}
}

// Indicate shows text in the status overlay, creating it on first use
func (d *Document) Indicate(ctx context.Context, state, text string) error {
	_, err := d.page.Context(ctx).Eval(jsIndicator, IndicatorID, state, text)
	return err
}

// Page returns the underlying rod page
func (d *Document) Page() *rod.Page {
	return d.page
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]internal.Node, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	nodes := make([]internal.Node, 0, len(els))
	for _, el := range els {
		nodes = append(nodes, &Node{el: el})
	}
	return nodes, nil
}

func (d *Document) Query(ctx context.Context, selector string) (internal.Node, error) {
	found, el, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Node{el: el}, nil
}

func (d *Document) Root(ctx context.Context) (internal.Node, error) {
	el, err := d.page.Context(ctx).ElementByJS(rod.Eval(jsRoot))
	if err != nil {
		return nil, fmt.Errorf("resolve document root: %w", err)
	}
	return &Node{el: el}, nil
}

// Watch observes structural changes under node. The channel closes when
// ctx ends or the observer disappears, e.g. after a navigation.
func (d *Document) Watch(ctx context.Context, node internal.Node) (<-chan struct{}, error) {
	n, ok := node.(*Node)
	if !ok {
		return nil, fmt.Errorf("cannot watch %T", node)
	}
	key := uuid.NewString()
	if _, err := n.el.Context(ctx).Eval(jsObserve, key); err != nil {
		return nil, fmt.Errorf("install mutation observer: %w", err)
	}

	log := d.log.With(zap.String("observer", key))
	log.Debug("mutation observer installed")

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer d.disconnect(key)

		ticker := time.NewTicker(d.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			res, err := d.page.Context(ctx).Eval(jsDrain, key)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Debug("drain mutation counter failed", zap.Error(err))
				continue
			}
			changes := res.Value.Int()
			if changes < 0 {
				log.Warn("mutation observer lost")
				return
			}
			if changes == 0 {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (d *Document) disconnect(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.page.Context(ctx).Eval(jsDisconnect, key); err != nil {
		d.log.Debug("disconnect mutation observer failed", zap.String("observer", key), zap.Error(err))
	}
}

// Node adapts a rod element to internal.Node
type Node struct {
	el *rod.Element
}

func (n *Node) Query(ctx context.Context, selector string) (internal.Node, error) {
	found, el, err := n.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Node{el: el}, nil
}

func (n *Node) Text(ctx context.Context) (string, error) {
	res, err := n.el.Context(ctx).Eval(jsText)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (n *Node) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := n.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (n *Node) SetAttr(ctx context.Context, name, value string) error {
	_, err := n.el.Context(ctx).Eval(jsSetAttr, name, value)
	return err
}

func (n *Node) ScrollMetrics(ctx context.Context) (internal.ScrollMetrics, error) {
	res, err := n.el.Context(ctx).Eval(jsMetrics)
	if err != nil {
		return internal.ScrollMetrics{}, err
	}
	return internal.ScrollMetrics{
		Top:          res.Value.Get("top").Num(),
		Height:       res.Value.Get("height").Num(),
		ClientHeight: res.Value.Get("clientHeight").Num(),
	}, nil
}

func (n *Node) SetScrollTop(ctx context.Context, top float64) error {
	_, err := n.el.Context(ctx).Eval(jsSetScrollTop, top)
	return err
}

func (n *Node) ScrollBy(ctx context.Context, dy float64) error {
	_, err := n.el.Context(ctx).Eval(jsScrollBy, dy)
	return err
}

// Mark adds class to the element for d. Both highlight classes get their
// styles injected on first use.
func (n *Node) Mark(ctx context.Context, class string, d time.Duration) error {
	_, err := n.el.Context(ctx).Eval(jsMark, class, internal.HighlightClass, internal.PrivilegedHighlightClass, d.Milliseconds())
	return err
}
