// Package event implements the broker's signal-driven shutdown sequence.
package event

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/life-stream-dev/aiomemq/internal/logger"
)

// Callable is a registered shutdown hook.
type Callable interface {
	Invoke(ctx context.Context) error
}

// Cleaner runs registered Callables once, on the first SIGINT/SIGTERM.
type Cleaner struct {
	cleaners       []Callable
	mu             sync.Mutex
	initOnce       sync.Once
	cleaning       bool
	loggerShutdown Callable
	done           chan struct{}
}

var cleanerInstance = &Cleaner{done: make(chan struct{})}

func NewCleaner() *Cleaner {
	return cleanerInstance
}

// Add registers a shutdown hook. Calls after shutdown has begun are ignored.
func (c *Cleaner) Add(callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.Debug("Cleaner is already shutting down, ignoring new cleaner")
		return
	}
	c.cleaners = append(c.cleaners, callable)
}

// Done returns a channel that closes once shutdown has run to completion.
func (c *Cleaner) Done() <-chan struct{} {
	return c.done
}

// Init arms the signal handler. It returns the context passed to stop
// so callers (e.g. the acceptor) can stop work cooperatively.
func (c *Cleaner) Init(loggerShutdown Callable) context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	c.initOnce.Do(func() {
		c.loggerShutdown = loggerShutdown

		go func() {
			<-ctx.Done()
			stop()
			logger.Info("Received interrupt signal, shutting down")

			c.mu.Lock()
			c.cleaning = true
			cleanersCopy := make([]Callable, len(c.cleaners))
			copy(cleanersCopy, c.cleaners)
			c.mu.Unlock()

			logger.DebugF("Starting cleanup of %d registered functions", len(cleanersCopy))

			var errs []error
			for i, callable := range cleanersCopy {
				func(idx int, cb Callable) {
					logger.DebugF("Invoking cleaner #%d (%T)", idx+1, cb)
					timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := cb.Invoke(timeoutCtx); err != nil {
						logger.ErrorF("Cleaner #%d (%T) failed: %v", idx+1, cb, err)
						errs = append(errs, err)
					}
				}(i, callable)
			}

			if len(errs) > 0 {
				logger.ErrorF("%d errors occurred during cleanup:", len(errs))
				for i, err := range errs {
					logger.ErrorF("Error %d: %v", i+1, err)
				}
			} else {
				logger.Debug("All cleaners executed successfully")
			}
			logger.Info("Cleanup finished, server offline")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
			}
			close(c.done)
		}()
	})

	return ctx
}
