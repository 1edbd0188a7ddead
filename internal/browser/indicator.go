package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iksnae/feed-collector/internal"
)

const indicateTimeout = 2 * time.Second

// Indicator states
const (
	IndicatorCollecting = "collecting"
	IndicatorPaused     = "paused"
	IndicatorStopped    = "stopped"
)

// ShowFunc paints one indicator state on the page
type ShowFunc func(ctx context.Context, state, text string) error

// Indicator mirrors engine notifications in an overlay on the feed page.
// Notifications never wait for the page; only the latest state is painted.
type Indicator struct {
	show ShowFunc
	log  *zap.Logger

	mu      sync.Mutex
	state   string
	message string
	count   int

	dirty chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewIndicator paints into doc's page
func NewIndicator(doc *Document) *Indicator {
	return NewIndicatorFunc(doc.Indicate)
}

// NewIndicatorFunc paints with show. Call Close to stop painting.
func NewIndicatorFunc(show ShowFunc) *Indicator {
	i := &Indicator{
		show:  show,
		log:   internal.Logger().Named("browser.indicator"),
		state: IndicatorCollecting,
		dirty: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go i.loop()
	return i
}

func (i *Indicator) Status(message string, severity internal.Severity) {
	i.update(func() {
		i.message = message
		switch {
		case severity == internal.SeverityWarning || severity == internal.SeverityError:
			i.state = string(severity)
		case strings.Contains(strings.ToLower(message), "paused"):
			i.state = IndicatorPaused
		default:
			i.state = IndicatorCollecting
		}
	})
}

func (i *Indicator) Progress(count int, _ map[string]int) {
	i.update(func() { i.count = count })
}

func (i *Indicator) SessionEnded(count int) {
	i.update(func() {
		i.count = count
		i.state = IndicatorStopped
		i.message = "Collection stopped"
	})
}

// Text returns the current state and overlay text
func (i *Indicator) Text() (string, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state, i.textLocked()
}

func (i *Indicator) textLocked() string {
	if i.message == "" {
		return fmt.Sprintf("Feed collector: %d collected", i.count)
	}
	return fmt.Sprintf("%s · %d collected", i.message, i.count)
}

func (i *Indicator) update(fn func()) {
	i.mu.Lock()
	fn()
	i.mu.Unlock()
	select {
	case i.dirty <- struct{}{}:
	default:
	}
}

// Close stops painting and waits for an in-flight paint to finish
func (i *Indicator) Close() {
	i.once.Do(func() { close(i.stop) })
	<-i.done
}

func (i *Indicator) loop() {
	defer close(i.done)
	for {
		select {
		case <-i.stop:
			return
		case <-i.dirty:
			state, text := i.Text()
			ctx, cancel := context.WithTimeout(context.Background(), indicateTimeout)
			if err := i.show(ctx, state, text); err != nil {
				i.log.Debug("paint status indicator failed", zap.Error(err))
			}
			cancel()
		}
	}
}
