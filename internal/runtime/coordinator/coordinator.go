// Package coordinator tracks the processing loops of a client and resolves
// once all of them are done or the first one fails.
package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
)

// Coordinator runs registered loops and reports their combined completion.
//
// Completion resolves with nil once Seal was called and every loop returned
// nil, or with a *errors.ProcessingError as soon as any loop fails. Other
// loops keep running after a failure; stopping them is up to the caller.
type Coordinator struct {
	log   logging.ServiceLogger
	group errgroup.Group

	mu     sync.Mutex
	sealed bool
	names  []string
	done   chan struct{}
	err    error
}

// New returns an open coordinator. A nil logger discards logs.
func New(log logging.ServiceLogger) *Coordinator {
	return &Coordinator{
		log:  logging.OrNop(log),
		done: make(chan struct{}),
	}
}

// Register starts loop on its own goroutine.
func (c *Coordinator) Register(name string, loop func() error) error {
	if loop == nil {
		return errpkg.ErrHandlerRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return errpkg.ErrCoordinatorSealed
	}
	c.names = append(c.names, name)

	c.group.Go(func() error {
		err := loop()
		if err != nil {
			c.log.Error("Processing failed", err, logging.LogFields{"processor": name})
			c.resolve(&errpkg.ProcessingError{Name: name, Err: err})
			return err
		}
		c.log.Debug("Processing completed", logging.LogFields{"processor": name})
		return nil
	})
	return nil
}

// Seal stops accepting loops. Completion can only succeed after Seal.
func (c *Coordinator) Seal() {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return
	}
	c.sealed = true
	c.mu.Unlock()

	go func() {
		if err := c.group.Wait(); err == nil {
			c.resolve(nil)
		}
	}()
}

// Close seals the coordinator and resolves a pending completion with
// errors.ErrCoordinatorClosed. Running loops are not waited for.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
	c.resolve(errpkg.ErrCoordinatorClosed)
}

// Names lists the registered loops in registration order.
func (c *Coordinator) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

// Done is closed once the coordinator resolved.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Err returns the completion result. It is nil until Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until the coordinator resolves or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve settles completion once; later calls are ignored.
func (c *Coordinator) resolve(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	c.err = err
	close(c.done)
}
