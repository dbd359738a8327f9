// File: internal/llmclient/cooldown.go
package llmclient

import (
	"context"
	"sync"
	"time"
)

// Cooldown is a shared backoff window armed after a rate-limit response.
// All sessions throttling against the same inference service share one
// instance; Wait blocks callers until the window has elapsed.
type Cooldown struct {
	mu     sync.Mutex
	until  time.Time
	window time.Duration
}

// NewCooldown creates a cooldown with the given window duration.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Cooldown{window: window}
}

// Arm starts (or restarts) the cooldown window from now.
func (c *Cooldown) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = time.Now().Add(c.window)
}

// Active reports whether the window is still open.
func (c *Cooldown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.until)
}

// Wait blocks until the window elapses or the context is cancelled.
func (c *Cooldown) Wait(ctx context.Context) error {
	c.mu.Lock()
	remaining := time.Until(c.until)
	c.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
