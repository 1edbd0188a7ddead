package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/iksnae/feed-collector/internal"
)

// Client sends commands to a collector over the bus
type Client struct {
	nc       *nats.Conn
	subjects Subjects
}

// NewClient creates a client for the collector listening under prefix
func NewClient(nc *nats.Conn, prefix string) *Client {
	return &Client{nc: nc, subjects: NewSubjects(prefix)}
}

// Send issues cmd and waits for the reply. format only matters for exports.
func (c *Client) Send(ctx context.Context, cmd internal.Command, format string) (*Reply, error) {
	reply, err := request[Request, Reply](ctx, c.nc, c.subjects.Command(), Request{Command: cmd, Format: format})
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", cmd.Action, err)
	}
	return &reply, nil
}

// EventHandlers receives bus events; nil handlers are skipped
type EventHandlers struct {
	Status   func(StatusEvent)
	Progress func(ProgressEvent)
	Ended    func(EndedEvent)
}

// Watch subscribes to the collector's events until ctx is done
func (c *Client) Watch(ctx context.Context, h EventHandlers) error {
	var subs []*nats.Subscription
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	if h.Status != nil {
		sub, err := subscribe(c.nc, c.subjects.Status(), func(_ context.Context, ev StatusEvent) { h.Status(ev) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	if h.Progress != nil {
		sub, err := subscribe(c.nc, c.subjects.Progress(), func(_ context.Context, ev ProgressEvent) { h.Progress(ev) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	if h.Ended != nil {
		sub, err := subscribe(c.nc, c.subjects.Ended(), func(_ context.Context, ev EndedEvent) { h.Ended(ev) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	if err := c.nc.Flush(); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
