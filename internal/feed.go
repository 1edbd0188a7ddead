package internal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// FeedState is the state of the change feed
type FeedState int

const (
	StateIdle FeedState = iota
	StateCollecting
	StatePaused
)

func (s FeedState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Trigger is a "scan now" signal and where it came from
type Trigger int

const (
	TriggerTick Trigger = iota
	TriggerMutation
)

// Watcher opens a structural change stream for the feed
type Watcher func(ctx context.Context) (<-chan struct{}, error)

// ChangeFeed fans a jittered tick and throttled DOM mutations into a single
// coalescing trigger channel.
type ChangeFeed struct {
	pacing Pacing

	mu       sync.Mutex
	state    FeedState
	cancel   context.CancelFunc
	group    *errgroup.Group
	triggers chan Trigger
}

// NewChangeFeed creates an idle feed
func NewChangeFeed(pacing Pacing) *ChangeFeed {
	return &ChangeFeed{pacing: pacing}
}

// State returns the current state
func (f *ChangeFeed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Arm starts the producers and returns the trigger channel, which is closed
// on Disarm. watch may be nil, in which case only the tick producer runs.
func (f *ChangeFeed) Arm(ctx context.Context, watch Watcher, paused bool) (<-chan Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateIdle {
		return nil, ErrAlreadyCollecting
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	triggers := make(chan Trigger, 1)

	g.Go(func() error { return f.tick(gctx, triggers) })
	if watch != nil {
		g.Go(func() error { return f.mutations(gctx, watch, triggers) })
	}

	f.cancel = cancel
	f.group = g
	f.triggers = triggers
	f.state = StateCollecting
	if paused {
		f.state = StatePaused
	}
	return triggers, nil
}

// SetPaused switches between Collecting and Paused. It is a no-op when idle.
func (f *ChangeFeed) SetPaused(paused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle {
		return
	}
	if paused {
		f.state = StatePaused
	} else {
		f.state = StateCollecting
	}
}

// Disarm stops the producers and waits for them to exit
func (f *ChangeFeed) Disarm() {
	f.mu.Lock()
	cancel, g, triggers := f.cancel, f.group, f.triggers
	f.cancel, f.group, f.triggers = nil, nil, nil
	f.state = StateIdle
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := g.Wait(); err != nil {
		LogDebug("Change feed producer exited: %v", err)
	}
	close(triggers)
}

func (f *ChangeFeed) emit(triggers chan<- Trigger, t Trigger) {
	select {
	case triggers <- t:
	default:
	}
}

func (f *ChangeFeed) tick(ctx context.Context, triggers chan<- Trigger) error {
	for {
		t := time.NewTimer(jitter(f.pacing.TickMin, f.pacing.TickMax))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
			f.emit(triggers, TriggerTick)
		}
	}
}

func (f *ChangeFeed) mutations(ctx context.Context, watch Watcher, triggers chan<- Trigger) error {
	changes, err := watch(ctx)
	if err != nil {
		LogWarn("Mutation watch unavailable, relying on timer: %v", err)
		return nil
	}

	limit := rate.Inf
	if f.pacing.MutationRate > 0 {
		limit = rate.Limit(f.pacing.MutationRate)
	}
	burst := f.pacing.MutationBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(changes)
			f.emit(triggers, TriggerMutation)
		}
	}
}

// drain discards notifications that piled up while throttled
func drain(ch <-chan struct{}) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
