package reversecall

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/ids"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// State is the lifecycle position of a Client.
type State uint8

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateConnectFailed
	StateHandling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConnectFailed:
		return "connect_failed"
	case StateHandling:
		return "handling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handler serves one request. It runs with the execution context of the
// request's tenant and correlation and the services scoped to that tenant.
type Handler[Q, P any] func(ctx context.Context, req Q, ec ecpkg.ExecutionContext, services tenancy.ServiceProvider) (P, error)

// errKeepaliveExpired is the cancellation cause set when the keepalive
// deadline passes.
var errKeepaliveExpired = errors.New("runtimeclient: keepalive deadline passed")

// ignoredLogEvery bounds how often ignored messages are logged per client.
const ignoredLogEvery = 5 * time.Second

// closeSendTimeout bounds the wait for an in-flight write before half-closing.
const closeSendTimeout = 5 * time.Second

// Client is one reverse call stream to the Runtime. The Runtime sends
// requests, the client answers them. A Client is used once: Connect, then
// Handle, then Close.
type Client[C, S, A, R, Q, P any] struct {
	protocol     Protocol[C, S, A, R, Q, P]
	method       string
	caller       MethodCaller
	ec           ecpkg.ExecutionContext
	pingInterval time.Duration
	providers    tenancy.TenantScopedProviders
	log          logging.ServiceLogger
	metrics      *Metrics
	ignoredLog   *rate.Limiter

	writes     *semaphore.Weighted
	dispatches sync.WaitGroup

	mu        sync.Mutex
	state     State
	closed    bool
	stream    Stream[C, S]
	streamCtx context.Context
	cancel    context.CancelCauseFunc
	response  R
}

// State returns the current lifecycle state.
func (c *Client[C, S, A, R, Q, P]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectResponse returns the response received by a successful Connect, or
// the zero value before that.
func (c *Client[C, S, A, R, Q, P]) ConnectResponse() R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Connect opens the stream, sends args and waits for the connect response.
// It reports false with a nil error when the stream ended, was cancelled or
// went silent before a response arrived. ctx bounds the connect phase only.
func (c *Client[C, S, A, R, Q, P]) Connect(ctx context.Context, args A) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, errpkg.ErrClientClosed
	}
	if c.state != StateUnconnected {
		c.mu.Unlock()
		return false, errpkg.ErrAlreadyConnecting
	}
	c.state = StateConnecting
	streamCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	c.streamCtx, c.cancel = streamCtx, cancel
	c.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	defer stopWatch()

	connected, err := c.connect(ctx, streamCtx, args)
	if connected {
		c.metrics.connected(c.method, connectResultConnected)
		return true, nil
	}

	c.mu.Lock()
	c.state = StateConnectFailed
	c.mu.Unlock()
	cancel(errpkg.ErrConnectFailed)
	if err != nil {
		c.metrics.connected(c.method, connectResultError)
		return false, err
	}
	c.metrics.connected(c.method, connectResultFailed)
	return false, nil
}

func (c *Client[C, S, A, R, Q, P]) connect(ctx, streamCtx context.Context, args A) (bool, error) {
	stream, err := Open[C, S](streamCtx, c.caller, c.method)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Debug("Connect cancelled before the stream opened", nil)
			return false, nil
		}
		return false, err
	}
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()

	arguments := ArgumentsContext{
		HeadID:           ids.NewHeadID(),
		ExecutionContext: c.ec,
		PingInterval:     c.wirePingInterval(),
	}
	if err := c.write(streamCtx, c.protocol.WrapConnect(arguments, args)); err != nil {
		if context.Cause(streamCtx) != nil || isCancellation(err) || errors.Is(err, io.EOF) {
			c.log.Debug("Stream ended while sending connect arguments", logging.LogFields{"error": err.Error()})
			return false, nil
		}
		return false, err
	}

	keepalive := startKeepalive(keepaliveDeadline(c.pingInterval), func() { c.cancel(errKeepaliveExpired) })
	defer keepalive.stop()

	for {
		msg, err := stream.Recv()
		if err != nil {
			return false, c.connectEnded(streamCtx, stream, keepalive, err)
		}
		keepalive.reset()

		env := classify(c.protocol, msg, phaseConnecting)
		c.metrics.received(c.method, env.kind)
		switch env.kind {
		case KindPing:
			c.pong(streamCtx)
		case KindConnectResponse:
			if !keepalive.stop() {
				c.metrics.pingTimedOut(c.method)
				c.closeSend(stream)
				c.log.Info("Connect response arrived after the keepalive deadline", logging.LogFields{
					"deadline": keepaliveDeadline(c.pingInterval).String(),
				})
				return false, nil
			}
			c.mu.Lock()
			c.response = env.response
			c.state = StateConnected
			c.mu.Unlock()
			c.log.Debug("Connected to the runtime", nil)
			return true, nil
		default:
			c.ignore(phaseConnecting)
		}
	}
}

func (c *Client[C, S, A, R, Q, P]) connectEnded(streamCtx context.Context, stream Stream[C, S], keepalive *keepalive, err error) error {
	switch {
	case keepalive.expired():
		c.metrics.pingTimedOut(c.method)
		c.closeSend(stream)
		c.log.Info("No message received from the runtime while connecting", logging.LogFields{
			"deadline": keepaliveDeadline(c.pingInterval).String(),
		})
		return nil
	case context.Cause(streamCtx) != nil:
		c.log.Debug("Connect cancelled", nil)
		return nil
	case isCancellation(err) || errors.Is(err, io.EOF):
		c.log.Info("Runtime ended the stream before a connect response", logging.LogFields{"error": err.Error()})
		return nil
	default:
		return err
	}
}

// Handle serves requests until the stream ends. It returns nil when ctx is
// cancelled, the Runtime ends the stream or a disconnect completes, and a
// *errors.PingTimedOutError when the Runtime went silent.
func (c *Client[C, S, A, R, Q, P]) Handle(ctx context.Context, handler Handler[Q, P]) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return errpkg.ErrClientClosed
	case c.state == StateHandling || c.state == StateTerminated:
		c.mu.Unlock()
		return errpkg.ErrAlreadyHandling
	case c.state != StateConnected:
		c.mu.Unlock()
		return errpkg.ErrNotConnected
	case handler == nil:
		c.mu.Unlock()
		return errpkg.ErrHandlerRequired
	}
	c.state = StateHandling
	stream, streamCtx, cancel := c.stream, c.streamCtx, c.cancel
	c.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	keepalive := startKeepalive(keepaliveDeadline(c.pingInterval), func() { cancel(errKeepaliveExpired) })
	defer func() {
		stopWatch()
		keepalive.stop()
		cancel(errpkg.ErrProcessingEnded)
		c.mu.Lock()
		c.state = StateTerminated
		c.mu.Unlock()
	}()

	for {
		msg, err := stream.Recv()
		if err != nil {
			return c.handleEnded(streamCtx, stream, keepalive, err)
		}
		keepalive.reset()

		env := classify(c.protocol, msg, phaseHandling)
		c.metrics.received(c.method, env.kind)
		switch env.kind {
		case KindPing:
			c.pong(streamCtx)
		case KindRequest:
			c.dispatch(streamCtx, handler, env.request)
		case KindDisconnectAck:
			c.disconnected(msg)
			c.closeSend(stream)
			return nil
		default:
			c.ignore(phaseHandling)
		}
	}
}

func (c *Client[C, S, A, R, Q, P]) handleEnded(streamCtx context.Context, stream Stream[C, S], keepalive *keepalive, err error) error {
	cause := context.Cause(streamCtx)
	switch {
	case cause != nil && !errors.Is(cause, errKeepaliveExpired):
		c.log.Debug("Handling cancelled", logging.LogFields{"cause": cause.Error()})
		return nil
	case keepalive.expired():
		c.metrics.pingTimedOut(c.method)
		c.closeSend(stream)
		return &errpkg.PingTimedOutError{
			PingInterval: c.pingInterval,
			Deadline:     keepaliveDeadline(c.pingInterval),
		}
	case isCancellation(err) || errors.Is(err, io.EOF):
		c.log.Info("Runtime ended the stream", logging.LogFields{"error": err.Error()})
		return nil
	default:
		return err
	}
}

func (c *Client[C, S, A, R, Q, P]) disconnected(msg *S) {
	dp, _ := any(c.protocol).(DisconnectProtocol[C, S])
	if dp == nil {
		return
	}
	if failure := dp.DisconnectFailure(msg); failure != nil {
		c.log.Error("Runtime reported a failure while disconnecting", errors.New(failure.Reason), logging.LogFields{
			"failure_id": failure.ID.String(),
		})
		return
	}
	c.log.Info("Disconnected from the runtime", nil)
}

// Disconnect asks the Runtime to end the stream once the requests it already
// sent are done. Handle returns when the Runtime acknowledges.
func (c *Client[C, S, A, R, Q, P]) Disconnect(ctx context.Context, gracePeriod time.Duration) error {
	dp, ok := any(c.protocol).(DisconnectProtocol[C, S])
	if !ok {
		return errpkg.ErrDisconnectNotSupported
	}
	if c.State() != StateHandling {
		return errpkg.ErrNotHandling
	}
	msg, ok := dp.WrapDisconnect(InitiateDisconnect{GracePeriod: gracePeriod})
	if !ok {
		return errpkg.ErrDisconnectNotSupported
	}
	return c.write(ctx, msg)
}

// Close stops the stream and waits for in-flight requests. Later writes fail
// with errors.ErrClientClosed. Close is idempotent.
func (c *Client[C, S, A, R, Q, P]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel(errpkg.ErrClientClosed)
	}
	c.dispatches.Wait()
	return nil
}

func (c *Client[C, S, A, R, Q, P]) wirePingInterval() time.Duration {
	if keepaliveDeadline(c.pingInterval) == 0 {
		return NoPingInterval
	}
	return c.pingInterval
}

func (c *Client[C, S, A, R, Q, P]) pong(ctx context.Context) {
	if err := c.write(ctx, c.protocol.WrapPong(Pong{})); err != nil {
		c.log.Error("Could not answer ping", err, nil)
		return
	}
	c.metrics.pinged(c.method)
}

func (c *Client[C, S, A, R, Q, P]) ignore(ph phase) {
	c.metrics.ignored(c.method, ph)
	if c.ignoredLog.Allow() {
		c.log.Info("Ignoring unexpected message from the runtime", logging.LogFields{"phase": ph.String()})
	}
}

// write sends msg while holding the single write slot.
func (c *Client[C, S, A, R, Q, P]) write(ctx context.Context, msg *C) error {
	if err := c.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.writes.Release(1)

	c.mu.Lock()
	closed, stream := c.closed, c.stream
	c.mu.Unlock()
	if closed {
		return errpkg.ErrClientClosed
	}
	if stream == nil {
		return errpkg.ErrNotConnected
	}
	return stream.Send(msg)
}

// closeSend half-closes the stream once no other write is in flight.
func (c *Client[C, S, A, R, Q, P]) closeSend(stream Stream[C, S]) {
	ctx, cancel := context.WithTimeout(context.Background(), closeSendTimeout)
	defer cancel()
	if err := c.writes.Acquire(ctx, 1); err != nil {
		c.log.Debug("Gave up waiting to half-close the stream", logging.LogFields{"error": err.Error()})
		return
	}
	defer c.writes.Release(1)
	_ = stream.CloseSend()
}
