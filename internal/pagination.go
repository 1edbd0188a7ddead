package internal

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacing bounds every wait and step the collector takes
type Pacing struct {
	StartDelayMin time.Duration `mapstructure:"start_delay_min" toml:"start_delay_min"`
	StartDelayMax time.Duration `mapstructure:"start_delay_max" toml:"start_delay_max"`
	TickMin       time.Duration `mapstructure:"tick_min" toml:"tick_min"`
	TickMax       time.Duration `mapstructure:"tick_max" toml:"tick_max"`
	MutationRate  float64       `mapstructure:"mutation_rate" toml:"mutation_rate"`
	MutationBurst int           `mapstructure:"mutation_burst" toml:"mutation_burst"`
	TopAttempts   int           `mapstructure:"top_attempts" toml:"top_attempts"`
	TopWaitMin    time.Duration `mapstructure:"top_wait_min" toml:"top_wait_min"`
	TopWaitMax    time.Duration `mapstructure:"top_wait_max" toml:"top_wait_max"`
	StepMin       int           `mapstructure:"step_min" toml:"step_min"`
	StepMax       int           `mapstructure:"step_max" toml:"step_max"`
	SettleMin     time.Duration `mapstructure:"settle_min" toml:"settle_min"`
	SettleMax     time.Duration `mapstructure:"settle_max" toml:"settle_max"`
	CooldownEvery int           `mapstructure:"cooldown_every" toml:"cooldown_every"`
	CooldownMin   time.Duration `mapstructure:"cooldown_min" toml:"cooldown_min"`
	CooldownMax   time.Duration `mapstructure:"cooldown_max" toml:"cooldown_max"`
	ProgressEvery int           `mapstructure:"progress_every" toml:"progress_every"`
	HighlightFor  time.Duration `mapstructure:"highlight_for" toml:"highlight_for"`
}

// DefaultPacing returns the production pacing
func DefaultPacing() Pacing {
	return Pacing{
		StartDelayMin: time.Second,
		StartDelayMax: 2 * time.Second,
		TickMin:       2 * time.Second,
		TickMax:       4 * time.Second,
		MutationRate:  4,
		MutationBurst: 1,
		TopAttempts:   50,
		TopWaitMin:    500 * time.Millisecond,
		TopWaitMax:    time.Second,
		StepMin:       300,
		StepMax:       500,
		SettleMin:     time.Second,
		SettleMax:     2 * time.Second,
		CooldownEvery: 50,
		CooldownMin:   5 * time.Second,
		CooldownMax:   10 * time.Second,
		ProgressEvery: 10,
		HighlightFor:  5 * time.Second,
	}
}

// jitter draws uniformly from [lo, hi]
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func jitterInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pager moves the feed viewport
type Pager struct {
	resolver *Resolver
	pacing   Pacing
}

// NewPager creates a new Pager
func NewPager(resolver *Resolver, pacing Pacing) *Pager {
	return &Pager{resolver: resolver, pacing: pacing}
}

// StartDelay waits the randomized delay that precedes scroll-to-top
func (p *Pager) StartDelay(ctx context.Context) error {
	return sleep(ctx, jitter(p.pacing.StartDelayMin, p.pacing.StartDelayMax))
}

// ScrollToTop pins the scroll container to the top and waits for history
// to load, returning early once it stays there. It returns the number of
// attempts made.
func (p *Pager) ScrollToTop(ctx context.Context) (int, error) {
	container, err := p.resolver.ScrollContainer(ctx)
	if err != nil {
		return 0, err
	}
	attempts := p.pacing.TopAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		if err := container.SetScrollTop(ctx, 0); err != nil {
			return i, err
		}
		if err := sleep(ctx, jitter(p.pacing.TopWaitMin, p.pacing.TopWaitMax)); err != nil {
			return i, err
		}
		m, err := container.ScrollMetrics(ctx)
		if err != nil {
			return i, err
		}
		if m.Top == 0 {
			LogDebug("Reached top after %d attempt(s)", i)
			return i, nil
		}
	}
	LogWarn("Scroll container did not settle at the top after %d attempts", attempts)
	return attempts, nil
}

// Advance scrolls forward by a random step and waits for rendering to settle
func (p *Pager) Advance(ctx context.Context) error {
	container, err := p.resolver.ScrollContainer(ctx)
	if err != nil {
		return err
	}
	step := jitterInt(p.pacing.StepMin, p.pacing.StepMax)
	if err := container.ScrollBy(ctx, float64(step)); err != nil {
		return err
	}
	return sleep(ctx, jitter(p.pacing.SettleMin, p.pacing.SettleMax))
}

// Cooldown waits the randomized pause taken every CooldownEvery records
func (p *Pager) Cooldown(ctx context.Context) error {
	return sleep(ctx, jitter(p.pacing.CooldownMin, p.pacing.CooldownMax))
}

// CrossedCooldown reports whether going from before to after records
// crossed a multiple of CooldownEvery.
func (p *Pager) CrossedCooldown(before, after int) bool {
	every := p.pacing.CooldownEvery
	if every <= 0 || after <= before {
		return false
	}
	return after/every > before/every
}
