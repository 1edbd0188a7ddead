package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// HighlightClass marks accepted feed items
	HighlightClass = "feed-collector-highlight"
	// PrivilegedHighlightClass marks accepted items of privileged authors
	PrivilegedHighlightClass = "feed-collector-highlight-privileged"
)

// EngineOptions configures an Engine
type EngineOptions struct {
	Selectors SelectorSet
	Pacing    Pacing
	Notifier  Notifier
	// Now overrides the clock, mostly for tests
	Now func() time.Time
}

// Engine is the incremental collection engine. It owns the session and
// serializes every command and commit behind one lock.
type Engine struct {
	doc      Document
	store    *StateStore
	notifier Notifier
	pacing   Pacing
	now      func() time.Time

	resolver  *Resolver
	extractor *Extractor
	pager     *Pager
	feed      *ChangeFeed

	base       context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	session  *Session
	seen     *SeenSet
	filter   *FilterStore
	gen      uint64
	cancel   context.CancelFunc
	disposed bool
	// lastStart is the start millisecond of the newest known session
	lastStart int64
}

// NewEngine creates an engine over doc persisting into kv
func NewEngine(doc Document, kv KVStore, opts EngineOptions) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pacing.ProgressEvery <= 0 {
		opts.Pacing.ProgressEvery = DefaultPacing().ProgressEvery
	}

	resolver := NewResolver(doc, opts.Selectors)
	extractor := NewExtractor(resolver)
	extractor.now = opts.Now

	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		doc:        doc,
		store:      NewStateStore(kv),
		notifier:   opts.Notifier,
		pacing:     opts.Pacing,
		now:        opts.Now,
		resolver:   resolver,
		extractor:  extractor,
		pager:      NewPager(resolver, opts.Pacing),
		feed:       NewChangeFeed(opts.Pacing),
		base:       base,
		baseCancel: cancel,
		seen:       NewSeenSet(),
	}
}

// Init rehydrates an in-flight session from durable storage
func (e *Engine) Init(ctx context.Context) error {
	snap, ok, err := e.store.Load(ctx)
	if err != nil {
		LogWarn("Failed to load saved state: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return errors.New("engine disposed")
	}
	if ms, err := strconv.ParseInt(snap.SessionID, 10, 64); err == nil && ms > e.lastStart {
		e.lastStart = ms
	}
	if !snap.Collecting {
		return nil
	}

	e.session = snap.ToSession()
	e.seen.Reset()
	e.filter = NewFilterStore(e.session, e.seen)
	e.notifier.Progress(e.session.Count(), e.session.CopyAuthorCounts())

	if e.session.Paused {
		e.notifier.Status(fmt.Sprintf("Session %s restored paused with %d record(s)", e.session.ID, e.session.Count()), SeverityInfo)
	} else {
		e.notifier.Status(fmt.Sprintf("Resuming session %s with %d record(s)", e.session.ID, e.session.Count()), SeverityInfo)
	}
	e.launchLocked(true)
	return nil
}

// Dispose stops any running session and waits for every goroutine
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.session != nil && e.session.Collecting {
		e.stopLocked(fmt.Sprintf("Collection stopped. Collected %d record(s)", e.session.Count()))
	}
	e.disposed = true
	e.mu.Unlock()

	e.baseCancel()
	e.feed.Disarm()
	e.wg.Wait()
}

// Suspend releases the document like Dispose but leaves the durable state
// untouched, so an in-flight session resumes on the next Init.
func (e *Engine) Suspend() {
	e.mu.Lock()
	e.disposed = true
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.mu.Unlock()

	e.baseCancel()
	e.feed.Disarm()
	e.wg.Wait()
}

// Handle dispatches cmd to the matching operation
func (e *Engine) Handle(cmd Command) Response {
	switch cmd.Action {
	case ActionStart:
		return e.Start(cmd.TargetAuthors, cmd.Limit, cmd.PrivilegedAuthors)
	case ActionTogglePause:
		return e.TogglePause()
	case ActionStop:
		return e.Stop()
	case ActionExportAll:
		return e.ExportAll()
	case ActionExportPrivileged:
		return e.ExportPrivileged()
	}
	LogWarn("Unknown action: %q", cmd.Action)
	return failure(cmd.Action, ErrUnknownAction, 0)
}

// Start begins a fresh session
func (e *Engine) Start(targets []string, limit int, privileged []string) Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return failure(ActionStart, errors.New("engine disposed"), 0)
	}
	if e.session != nil && e.session.Collecting {
		e.notifier.Status("Collection is already running", SeverityWarning)
		return failure(ActionStart, ErrAlreadyCollecting, e.session.Count())
	}
	if limit <= 0 {
		return failure(ActionStart, ErrInvalidLimit, 0)
	}
	targets = normalizeAuthors(targets)
	if len(targets) == 0 {
		return failure(ActionStart, ErrNoTargets, 0)
	}

	e.session = NewSession(targets, privileged, limit, e.startTimeLocked())
	e.session.Collecting = true
	e.seen.Reset()
	e.filter = NewFilterStore(e.session, e.seen)
	e.saveLocked()

	e.notifier.Status(fmt.Sprintf("Collection started for %d target author(s)", len(targets)), SeverityInfo)
	e.launchLocked(false)
	return Response{Success: true, Message: "Collection started"}
}

// startTimeLocked returns the start time for a new session, bumped past
// the previous one so session ids stay unique and increasing.
func (e *Engine) startTimeLocked() time.Time {
	now := e.now()
	if now.UnixMilli() <= e.lastStart {
		now = time.UnixMilli(e.lastStart + 1)
	}
	e.lastStart = now.UnixMilli()
	return now
}

// TogglePause flips between collecting and paused
func (e *Engine) TogglePause() Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.Collecting {
		return failure(ActionTogglePause, ErrNotCollecting, 0)
	}
	e.session.Paused = !e.session.Paused
	e.feed.SetPaused(e.session.Paused)
	e.saveLocked()

	msg := "Collection resumed"
	if e.session.Paused {
		msg = "Collection paused"
	}
	e.notifier.Status(msg, SeverityInfo)
	return Response{Success: true, Message: msg, Count: e.session.Count()}
}

// Stop ends the session and reports the final count
func (e *Engine) Stop() Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.Collecting {
		return failure(ActionStop, ErrNotCollecting, 0)
	}
	count := e.session.Count()
	msg := fmt.Sprintf("Collection stopped. Collected %d record(s)", count)
	e.stopLocked(msg)
	return Response{Success: true, Message: msg, Count: count}
}

// ExportAll exports every record of the current or last session
func (e *Engine) ExportAll() Response {
	return e.export(ActionExportAll, ScopeAll)
}

// ExportPrivileged exports the records of privileged authors only
func (e *Engine) ExportPrivileged() Response {
	return e.export(ActionExportPrivileged, ScopePrivileged)
}

func (e *Engine) export(action string, scope ExportScope) Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		e.notifier.Status("No records to export", SeverityError)
		return failure(action, ErrNoRecords, 0)
	}
	doc, err := NewExportDocument(e.session, scope, e.now())
	if err != nil {
		if scope == ScopePrivileged {
			e.notifier.Status("No privileged records to export", SeverityWarning)
		} else {
			e.notifier.Status("No records to export", SeverityError)
		}
		return failure(action, err, 0)
	}
	msg := fmt.Sprintf("Exported %d record(s)", doc.Metadata.TotalRecords)
	e.notifier.Status(msg, SeveritySuccess)
	return Response{Success: true, Message: msg, Count: doc.Metadata.TotalRecords, Document: doc}
}

// Snapshot returns a copy of the current session, or nil before any start
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.Snapshot()
}

// State reports the change feed state
func (e *Engine) State() FeedState {
	return e.feed.State()
}

// launchLocked bumps the generation and starts the session runner
func (e *Engine) launchLocked(resumed bool) {
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	ctx, cancel := context.WithCancel(e.base)
	e.cancel = cancel

	gen := e.gen
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx, gen, resumed)
	}()
}

// stopLocked disarms the feed and freezes the session
func (e *Engine) stopLocked(msg string) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.feed.Disarm()
	e.session.Collecting = false
	e.session.Paused = false
	e.saveLocked()

	count := e.session.Count()
	e.notifier.Progress(count, e.session.CopyAuthorCounts())
	e.notifier.Status(msg, SeverityInfo)
	e.notifier.SessionEnded(count)
}

func (e *Engine) saveLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.Save(ctx, e.session.Snapshot()); err != nil {
		LogWarn("Failed to save state: %v", err)
	}
}

// current reports whether gen is still the live, collecting session
func (e *Engine) current(gen uint64) bool {
	return e.gen == gen && e.session != nil && e.session.Collecting
}

func (e *Engine) run(ctx context.Context, gen uint64, resumed bool) {
	if !resumed {
		if err := e.pager.StartDelay(ctx); err != nil {
			return
		}
		n, err := e.pager.ScrollToTop(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			LogDebug("Scroll to top failed: %v", err)
			e.status(gen, "Scroll container not found", SeverityError)
		default:
			LogDebug("Scroll to top took %d attempt(s)", n)
			e.status(gen, "Reached the top of history", SeverityInfo)
		}
	}

	e.mu.Lock()
	if !e.current(gen) {
		e.mu.Unlock()
		return
	}
	triggers, err := e.feed.Arm(ctx, e.watch, e.session.Paused)
	e.mu.Unlock()
	if err != nil {
		LogError("Failed to arm change feed: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-triggers:
			if !ok {
				return
			}
			if e.feed.State() != StateCollecting {
				continue
			}
			if t == TriggerTick {
				if err := e.pager.Advance(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					LogDebug("Advance failed: %v", err)
				}
			}
			before, after := e.scan(ctx, gen)
			if e.pager.CrossedCooldown(before, after) {
				LogInfo("Cooling down after %d record(s)", after)
				if err := e.pager.Cooldown(ctx); err != nil {
					return
				}
			}
		}
	}
}

// watch opens the mutation stream on the current scroll container
func (e *Engine) watch(ctx context.Context) (<-chan struct{}, error) {
	container, err := e.resolver.ScrollContainer(ctx)
	if err != nil {
		return nil, err
	}
	return e.doc.Watch(ctx, container)
}

func (e *Engine) status(gen uint64, msg string, severity Severity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current(gen) {
		e.notifier.Status(msg, severity)
	}
}

type candidate struct {
	node   Node
	record Record
}

// scan reads the visible feed items and commits the acceptable ones. It
// returns the record count before and after the commit.
func (e *Engine) scan(ctx context.Context, gen uint64) (int, int) {
	e.mu.Lock()
	if !e.current(gen) {
		e.mu.Unlock()
		return 0, 0
	}
	sessionID := e.session.ID
	e.mu.Unlock()

	nodes, err := e.resolver.Messages(ctx)
	if err != nil {
		LogDebug("No feed items visible: %v", err)
		return 0, 0
	}

	var candidates []candidate
	for _, node := range nodes {
		if ctx.Err() != nil {
			return 0, 0
		}
		id, err := e.extractor.Identity(ctx, node, e.now())
		if err != nil {
			LogDebug("Skipping node without identity: %v", err)
			continue
		}
		if e.seen.Has(id) {
			continue
		}
		rec, err := e.extractor.Extract(ctx, node, sessionID)
		if err != nil {
			LogDebug("Skipping node %s: %v", id, err)
			continue
		}
		candidates = append(candidates, candidate{node: node, record: *rec})
	}

	e.mu.Lock()
	if !e.current(gen) || e.session.Paused {
		e.mu.Unlock()
		return 0, 0
	}
	before := e.session.Count()
	var accepted []candidate
	for _, c := range candidates {
		if !e.filter.Accept(c.record.ID, c.record) {
			continue
		}
		accepted = append(accepted, c)
		count := e.session.Count()
		if count%e.pacing.ProgressEvery == 0 {
			e.notifier.Progress(count, e.session.CopyAuthorCounts())
		}
		if e.session.LimitReached() {
			break
		}
	}
	if len(accepted) > 0 {
		e.saveLocked()
	}
	if e.session.LimitReached() {
		e.notifier.Status(fmt.Sprintf("Limit of %d records reached", e.session.Limit), SeveritySuccess)
		e.stopLocked(fmt.Sprintf("Collection stopped. Collected %d record(s)", e.session.Count()))
	}
	after := e.session.Count()
	privileged := make([]bool, len(accepted))
	for i, c := range accepted {
		privileged[i] = e.filter.IsPrivileged(c.record.Username)
	}
	e.mu.Unlock()

	for i, c := range accepted {
		class := HighlightClass
		if privileged[i] {
			class = PrivilegedHighlightClass
		}
		if err := c.node.Mark(context.WithoutCancel(ctx), class, e.pacing.HighlightFor); err != nil {
			LogDebug("Failed to mark %s: %v", c.record.ID, err)
		}
	}
	if len(accepted) > 0 {
		LogDebug("Scan accepted %d of %d visible item(s)", len(accepted), len(nodes))
	}
	return before, after
}

func failure(action string, err error, count int) Response {
	cerr := &CommandError{Action: action, Err: err}
	LogDebug("%v", cerr)
	return Response{Success: false, Error: err.Error(), Count: count}
}
