package client

import (
	"context"
	"errors"
	"sync"

	"github.com/coffeestaff/portal/internal/metrics"
)

// ErrSuperseded is returned by a call that was replaced by a newer call
// through the same Caller. Its result must be discarded.
var ErrSuperseded = errors.New("call superseded by a newer request")

// Caller wraps one stream of calls (for example "reload the image list").
// Issuing a new call cancels the one still in flight, so a stale response
// can never overwrite the state produced by a newer one.
type Caller struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Do runs fn with a context that is cancelled when the next call starts.
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		metrics.RecordSuperseded()
	}
	c.gen++
	gen := c.gen
	callCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	err := fn(callCtx)

	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel()

	if !current {
		return ErrSuperseded
	}
	return err
}

// Cancel aborts the in-flight call, if any.
func (c *Caller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.gen++
	}
}

// Call is the typed form of Caller.Do.
func Call[T any](ctx context.Context, c *Caller, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
