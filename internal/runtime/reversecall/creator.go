package reversecall

import (
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// DefaultPingInterval is used when WithPingInterval is not given.
const DefaultPingInterval = 5 * time.Second

// Creator holds what every Client shares: the caller, the base execution
// context, the ping interval and the tenant services. It builds fresh clients
// with Create.
type Creator struct {
	caller       MethodCaller
	ec           ecpkg.ExecutionContext
	log          logging.ServiceLogger
	pingInterval time.Duration
	providers    tenancy.TenantScopedProviders
	metrics      *Metrics
}

// CreatorOption configures a Creator.
type CreatorOption func(*Creator)

// WithPingInterval sets how often the Runtime should ping. NoPingInterval
// disables keepalive.
func WithPingInterval(interval time.Duration) CreatorOption {
	return func(c *Creator) {
		c.pingInterval = interval
	}
}

// WithTenantProviders sets the per-tenant services handed to handlers.
func WithTenantProviders(providers tenancy.TenantScopedProviders) CreatorOption {
	return func(c *Creator) {
		c.providers = providers
	}
}

// WithMetrics records client statistics on m.
func WithMetrics(m *Metrics) CreatorOption {
	return func(c *Creator) {
		c.metrics = m
	}
}

// NewCreator validates its inputs. A nil logger discards logs.
func NewCreator(caller MethodCaller, ec ecpkg.ExecutionContext, log logging.ServiceLogger, opts ...CreatorOption) (*Creator, error) {
	if caller == nil {
		return nil, errpkg.ErrCallerRequired
	}
	c := &Creator{
		caller:       caller,
		ec:           ec,
		log:          logging.OrNop(log),
		pingInterval: DefaultPingInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.pingInterval <= 0 {
		return nil, errpkg.ErrInvalidPingInterval
	}
	if c.providers == nil {
		c.providers = tenancy.NewProviders(nil)
	}
	return c, nil
}

// PingInterval returns the configured ping interval.
func (cr *Creator) PingInterval() time.Duration { return cr.pingInterval }

// ExecutionContext returns the base execution context.
func (cr *Creator) ExecutionContext() ecpkg.ExecutionContext { return cr.ec }

// Create returns a new, unconnected client for protocol.
func Create[C, S, A, R, Q, P any](cr *Creator, protocol Protocol[C, S, A, R, Q, P]) (*Client[C, S, A, R, Q, P], error) {
	if cr == nil {
		return nil, errpkg.ErrCallerRequired
	}
	if protocol == nil {
		return nil, errpkg.ErrProtocolRequired
	}
	method := protocol.Method()
	return &Client[C, S, A, R, Q, P]{
		protocol:     protocol,
		method:       method,
		caller:       cr.caller,
		ec:           cr.ec,
		pingInterval: cr.pingInterval,
		providers:    cr.providers,
		log:          cr.log.With(logging.LogFields{"method": method}),
		metrics:      cr.metrics,
		ignoredLog:   rate.NewLimiter(rate.Every(ignoredLogEvery), 1),
		writes:       semaphore.NewWeighted(1),
	}, nil
}
