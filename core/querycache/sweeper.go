package querycache

import (
	"context"
	"fmt"
	"time"
)

// Start runs Cleanup every sweep interval until ctx is done or Stop is called.
// Calling Start on a running cache does nothing.
func (c *Cache) Start(ctx context.Context) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.stopSweep != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.stopSweep = cancel
	c.swept = make(chan struct{})
	go c.sweep(ctx, c.swept)
}

// Stop halts the background sweep and waits for it to return.
func (c *Cache) Stop() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.stopSweep == nil {
		return
	}
	c.stopSweep()
	<-c.swept
	c.stopSweep = nil
	c.swept = nil
}

func (c *Cache) sweep(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.logger.Debug(fmt.Sprintf("query cache: swept %d expired entries", n))
			}
		}
	}
}
