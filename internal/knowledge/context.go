package knowledge

import (
	"context"
	"sync"
	"time"
)

// Context holds the system context string shared by every outbound request.
// It is set once; later Set calls are ignored.
type Context struct {
	mu    sync.RWMutex
	text  string
	once  sync.Once
	ready chan struct{}
}

// NewContext returns an empty, not-yet-ready Context.
func NewContext() *Context {
	return &Context{ready: make(chan struct{})}
}

// Set stores the value and marks the context ready. Only the first call has effect.
func (c *Context) Set(text string) bool {
	applied := false
	c.once.Do(func() {
		c.mu.Lock()
		c.text = text
		c.mu.Unlock()
		close(c.ready)
		applied = true
	})
	return applied
}

// Text returns whatever is present now, which may be empty while loading.
func (c *Context) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Ready is closed once the value has been set.
func (c *Context) Ready() <-chan struct{} { return c.ready }

// Wait blocks until the context is ready, max elapses, or ctx is done, and
// returns the value present at that instant.
func (c *Context) Wait(ctx context.Context, max time.Duration) string {
	if max <= 0 {
		return c.Text()
	}
	timer := time.NewTimer(max)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
	case <-ctx.Done():
	}
	return c.Text()
}
