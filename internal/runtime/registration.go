package runtime

import (
	"fmt"

	"github.com/google/uuid"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/eventhandlers"
	"github.com/drblury/runtimeclient/internal/runtime/filters"
	loggingpkg "github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/projections"
)

// RegisterEventHandler adds an event handler to the client. It is registered
// with the Runtime when the client starts.
func RegisterEventHandler(c *Client, h eventhandlers.EventHandler) error {
	if c == nil {
		return errpkg.ErrClientRequired
	}
	p, err := eventhandlers.NewProcessor(h, c.creator, c.chain, c.Logger, c.retry)
	if err != nil {
		return err
	}
	return c.register(p)
}

// RegisterFilter adds a private, partitioned or public filter to the client.
func RegisterFilter(c *Client, f filters.Filter) error {
	if c == nil {
		return errpkg.ErrClientRequired
	}
	p, err := filters.NewProcessor(f, c.creator, c.chain, c.Logger, c.retry)
	if err != nil {
		return err
	}
	return c.register(p)
}

// RegisterProjection adds a projection to the client.
func RegisterProjection(c *Client, p projections.Projection) error {
	if c == nil {
		return errpkg.ErrClientRequired
	}
	proc, err := projections.NewProcessor(p, c.creator, c.chain, c.Logger, c.retry)
	if err != nil {
		return err
	}
	return c.register(proc)
}

func (c *Client) register(runner processing.Runner) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	switch {
	case c.closed:
		return errpkg.ErrClientClosed
	case c.started:
		return errpkg.ErrCoordinatorSealed
	}

	c.processorsMu.Lock()
	defer c.processorsMu.Unlock()
	for _, existing := range c.processors {
		if existing.runner.Kind() == runner.Kind() && existing.runner.ID() == runner.ID() {
			return fmt.Errorf("%w: %s", errpkg.ErrDuplicateProcessor, runner.Name())
		}
	}
	c.processors = append(c.processors, &registeredProcessor{
		runner: runner,
		stats:  newProcessorStats(c.getResourceTracker()),
	})
	c.Logger.Debug("Processor added", loggingpkg.LogFields{"processor": runner.Name()})
	return nil
}

func (c *Client) snapshotProcessors() []*registeredProcessor {
	c.processorsMu.RLock()
	defer c.processorsMu.RUnlock()
	return append([]*registeredProcessor(nil), c.processors...)
}

// statsFor finds stats by kind and ID, the same identity registration uses to
// reject duplicates. Names are not unique across aliases.
func (c *Client) statsFor(kind string, id uuid.UUID) *ProcessorStats {
	c.processorsMu.RLock()
	defer c.processorsMu.RUnlock()
	for _, p := range c.processors {
		if p.runner.Kind() == kind && p.runner.ID() == id {
			return p.stats
		}
	}
	return nil
}

// Processors describes every registered processor with its current status.
func (c *Client) Processors() []*ProcessorInfo {
	registered := c.snapshotProcessors()
	infos := make([]*ProcessorInfo, 0, len(registered))
	for _, p := range registered {
		infos = append(infos, &ProcessorInfo{
			Name:   p.runner.Name(),
			Kind:   p.runner.Kind(),
			ID:     p.runner.ID(),
			Status: p.runner.Status(),
			Stats:  p.stats,
		})
	}
	return infos
}
