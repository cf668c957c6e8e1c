// Package processing keeps a processor registered with the Runtime: it
// connects a reverse call client, checks the registration response, handles
// requests and reconnects with exponential backoff when the stream ends.
package processing

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

// Runner is a type-erased processor as seen by the client and the web UI.
type Runner interface {
	Name() string
	Kind() string
	ID() uuid.UUID
	Run(ctx context.Context) error
	Status() StatusSnapshot
}

// RetryConfig customises reconnect behaviour. Zero values take defaults.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxRetries bounds consecutive failed attempts; 0 retries forever.
	MaxRetries uint
	// DisconnectGrace enables the disconnect handshake on shutdown for
	// protocols that support it.
	DisconnectGrace time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Minute
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return cfg
}

// Definition is what a feature package supplies to build a Processor.
type Definition[C, S, A, R, Q, P any] struct {
	Kind     string
	ID       uuid.UUID
	Alias    string
	Protocol reversecall.Protocol[C, S, A, R, Q, P]
	// Arguments are sent on every connect.
	Arguments A
	// Accept inspects the connect response; a non-nil error fails the attempt.
	Accept  func(R) error
	Handler reversecall.Handler[Q, P]
}

// Processor registers one processor definition and keeps it registered.
type Processor[C, S, A, R, Q, P any] struct {
	def     Definition[C, S, A, R, Q, P]
	name    string
	creator *reversecall.Creator
	log     logging.ServiceLogger
	retry   RetryConfig
	status  *Status
}

// New validates def and returns a processor ready to Run.
func New[C, S, A, R, Q, P any](def Definition[C, S, A, R, Q, P], creator *reversecall.Creator, log logging.ServiceLogger, retry RetryConfig) (*Processor[C, S, A, R, Q, P], error) {
	if creator == nil {
		return nil, errpkg.ErrCallerRequired
	}
	if def.Protocol == nil {
		return nil, errpkg.ErrProtocolRequired
	}
	if def.Handler == nil {
		return nil, errpkg.ErrHandlerRequired
	}
	if def.ID == uuid.Nil {
		return nil, errpkg.ErrProcessorIDRequired
	}
	name := def.Kind + "/" + def.ID.String()
	if def.Alias != "" {
		name = def.Kind + "/" + def.Alias
	}
	return &Processor[C, S, A, R, Q, P]{
		def:     def,
		name:    name,
		creator: creator,
		log: logging.OrNop(log).With(logging.LogFields{
			"processor":    name,
			"processor_id": def.ID.String(),
		}),
		retry:  retry.withDefaults(),
		status: newStatus(),
	}, nil
}

func (p *Processor[C, S, A, R, Q, P]) Name() string           { return p.name }
func (p *Processor[C, S, A, R, Q, P]) Kind() string           { return p.def.Kind }
func (p *Processor[C, S, A, R, Q, P]) ID() uuid.UUID          { return p.def.ID }
func (p *Processor[C, S, A, R, Q, P]) Status() StatusSnapshot { return p.status.Snapshot() }

// Run registers the processor and handles requests until ctx is cancelled,
// reconnecting whenever the stream ends or registration fails. It returns nil
// on cancellation and the last error once retries are exhausted.
func (p *Processor[C, S, A, R, Q, P]) Run(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.retry.InitialInterval
	expo.MaxInterval = p.retry.MaxInterval

	// failures counts attempts since the last accepted registration.
	var failures uint
	registered := func() {
		failures = 0
		expo.Reset()
	}
	operation := func() (struct{}, error) {
		err := p.runOnce(ctx, registered)
		switch {
		case ctx.Err() != nil:
			return struct{}{}, nil
		case err == nil:
			err = errpkg.ErrProcessingEnded
		case errpkg.IsMisuse(err):
			return struct{}{}, backoff.Permanent(err)
		}
		failures++
		if p.retry.MaxRetries > 0 && failures > p.retry.MaxRetries {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	notify := func(err error, wait time.Duration) {
		p.log.Info("Reconnecting processor", logging.LogFields{
			"reason":  err.Error(),
			"wait_ms": wait.Milliseconds(),
		})
		p.status.reconnecting(err, wait)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if ctx.Err() != nil {
		p.status.finished(nil)
		p.log.Debug("Processor stopped", nil)
		return nil
	}
	p.status.finished(err)
	return err
}

// RunOnce performs a single connect, registration check and handle cycle.
// It returns nil when handling ended normally.
func (p *Processor[C, S, A, R, Q, P]) RunOnce(ctx context.Context) error {
	return p.runOnce(ctx, nil)
}

func (p *Processor[C, S, A, R, Q, P]) runOnce(ctx context.Context, onRegistered func()) error {
	client, err := reversecall.Create(p.creator, p.def.Protocol)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	p.status.connecting()
	connected, err := client.Connect(ctx, p.def.Arguments)
	if err != nil {
		return err
	}
	if !connected {
		if ctx.Err() != nil {
			return nil
		}
		return errpkg.ErrConnectFailed
	}
	if p.def.Accept != nil {
		if err := p.def.Accept(client.ConnectResponse()); err != nil {
			p.log.Error("Registration was rejected", err, nil)
			return err
		}
	}

	p.status.registered()
	p.log.Info("Processor registered", nil)
	if onRegistered != nil {
		onRegistered()
	}

	handleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() { p.shutdown(client, cancel) })
	defer stop()

	err = client.Handle(handleCtx, p.def.Handler)
	var timeout *errpkg.PingTimedOutError
	if errors.As(err, &timeout) {
		p.log.Info("Runtime stopped pinging", logging.LogFields{"deadline": timeout.Deadline.String()})
	}
	return err
}

// shutdown ends handling when the run context is cancelled. With a grace
// period and a protocol that supports it, the Runtime is asked to disconnect
// first and handling is cut off only when the grace period passes.
func (p *Processor[C, S, A, R, Q, P]) shutdown(client *reversecall.Client[C, S, A, R, Q, P], cancel context.CancelFunc) {
	grace := p.retry.DisconnectGrace
	if grace <= 0 || !reversecall.SupportsDisconnect(p.def.Protocol) {
		cancel()
		return
	}
	ctx, done := context.WithTimeout(context.Background(), grace)
	defer done()
	if err := client.Disconnect(ctx, grace); err != nil {
		p.log.Error("Could not start disconnect", err, nil)
		cancel()
		return
	}
	time.AfterFunc(grace, cancel)
}
