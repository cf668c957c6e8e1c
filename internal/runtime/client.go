package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/runtimeclient/internal/runtime/config"
	"github.com/drblury/runtimeclient/internal/runtime/coordinator"
	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/handlers"
	loggingpkg "github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
	transportpkg "github.com/drblury/runtimeclient/internal/runtime/transport"
	backends "github.com/drblury/runtimeclient/transport"
)

const httpShutdownTimeout = 5 * time.Second

// ClientDependencies holds the optional collaborators of a Client. Leave
// fields nil to use the defaults.
type ClientDependencies struct {
	// Caller replaces the transport built from the configuration. The client
	// closes it on Close.
	Caller           transportpkg.Caller
	TransportFactory transportpkg.Factory
	TenantProviders  tenancy.TenantScopedProviders
	Validator        handlers.ProtoValidator
	// Middlewares run inside the default chain, closest to user code.
	Middlewares               []processing.Middleware
	DisableDefaultMiddlewares bool
	Hooks                     processing.RequestHooks
	ErrorClassifier           ErrorClassifier
	// Registerer receives the client's Prometheus collectors when metrics
	// are enabled. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Client connects event handlers, filters and projections to the Runtime
// and keeps them registered.
type Client struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	caller      transportpkg.Caller
	creator     *reversecall.Creator
	coordinator *coordinator.Coordinator
	chain       processing.Middleware
	retry       processing.RetryConfig
	validator   handlers.ProtoValidator
	registerer  prometheus.Registerer

	processors   []*registeredProcessor
	processorsMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
	resourceTracker *resourceTracker

	stateMu sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

type registeredProcessor struct {
	runner processing.Runner
	stats  *ProcessorStats
}

// NewClient constructs a Client for the supplied configuration and panics when
// it cannot. Register processors on the returned Client before calling Start.
func NewClient(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ClientDependencies) *Client {
	c, err := TryNewClient(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return c
}

// TryNewClient is NewClient returning the setup error instead of panicking.
func TryNewClient(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ClientDependencies) (*Client, error) {
	if conf == nil {
		return nil, errpkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errpkg.ErrLoggerRequired
	}
	if err := errpkg.NewConfigValidationError(conf.Validate()); err != nil {
		return nil, err
	}
	resolved := conf.WithDefaults()
	log.Info("Creating runtime client", loggingpkg.LogFields{
		"runtime_transport": resolved.RuntimeTransport,
		"config":            resolved,
	})

	ec, err := resolved.ExecutionContext()
	if err != nil {
		return nil, errpkg.NewConfigValidationError(err)
	}

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	caller := deps.Caller
	if caller == nil {
		factory := deps.TransportFactory
		if factory == nil {
			factory = transportpkg.NewFactory(backends.DefaultRegistry, registerer)
		}
		if caller, err = factory.Build(ctx, &resolved, log); err != nil {
			return nil, err
		}
	}

	opts := []reversecall.CreatorOption{
		reversecall.WithPingInterval(resolved.PingInterval),
		reversecall.WithTenantProviders(deps.TenantProviders),
	}
	if resolved.DisablePing {
		opts[0] = reversecall.WithPingInterval(reversecall.NoPingInterval)
	}
	if resolved.MetricsEnabled {
		metrics := reversecall.NewMetrics(registerer)
		if err := metrics.Register(); err != nil {
			_ = caller.Close()
			return nil, fmt.Errorf("register reverse call metrics: %w", err)
		}
		opts = append(opts, reversecall.WithMetrics(metrics))
	}
	creator, err := reversecall.NewCreator(caller, ec, log, opts...)
	if err != nil {
		_ = caller.Close()
		return nil, err
	}

	c := &Client{
		Conf:            &resolved,
		Logger:          log,
		caller:          caller,
		creator:         creator,
		coordinator:     coordinator.New(log),
		validator:       deps.Validator,
		registerer:      registerer,
		errorClassifier: deps.ErrorClassifier,
		resourceTracker: newResourceTracker(),
		retry: processing.RetryConfig{
			InitialInterval: resolved.ReconnectInitialInterval,
			MaxInterval:     resolved.ReconnectMaxInterval,
			MaxRetries:      uint(resolved.ReconnectMaxRetries),
			DisconnectGrace: resolved.DisconnectGracePeriod,
		},
	}
	c.chain = c.buildChain(deps)
	return c, nil
}

// buildChain orders the middlewares from outermost to innermost: stats, hooks,
// the default chain, then the user supplied middlewares.
func (c *Client) buildChain(deps ClientDependencies) processing.Middleware {
	mws := []processing.Middleware{c.statsMiddleware(), processing.HooksMiddleware(deps.Hooks)}
	if !deps.DisableDefaultMiddlewares {
		mws = append(mws, processing.DefaultMiddlewares(c.Logger)...)
	}
	mws = append(mws, deps.Middlewares...)
	return processing.Chain(mws...)
}

func (c *Client) statsMiddleware() processing.Middleware {
	return func(ctx context.Context, inv processing.Invocation, next processing.Next) error {
		stats := c.statsFor(inv.Kind, inv.ProcessorID)
		if stats == nil {
			return next(ctx)
		}
		stats.onRequestStart()
		started := time.Now()
		err := next(ctx)
		stats.onRequestFinish(time.Since(started), err, c.getErrorClassifier())
		return err
	}
}

// Validator returns the validator typed protobuf handlers should use.
func (c *Client) Validator() handlers.ProtoValidator { return c.validator }

// Start runs every registered processor until ctx is cancelled or one of them
// fails for good. It returns nil on cancellation and on Close.
func (c *Client) Start(ctx context.Context) error {
	c.stateMu.Lock()
	switch {
	case c.closed:
		c.stateMu.Unlock()
		return errpkg.ErrClientClosed
	case c.started:
		c.stateMu.Unlock()
		return errpkg.ErrClientStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stateMu.Unlock()
	defer cancel()

	for _, p := range c.snapshotProcessors() {
		runner := p.runner
		if err := c.coordinator.Register(runner.Name(), func() error { return runner.Run(runCtx) }); err != nil {
			return err
		}
	}
	c.coordinator.Seal()

	c.StartWebUIServer()
	c.startMetricsServer()
	c.startHTTPServers(runCtx)

	c.Logger.Info("Runtime client started", loggingpkg.LogFields{"processors": len(c.coordinator.Names())})
	err := c.coordinator.Wait(ctx)
	if ctx.Err() != nil {
		cancel()
		<-c.coordinator.Done()
		c.Logger.Info("Runtime client stopped", nil)
		return nil
	}
	if errors.Is(err, errpkg.ErrCoordinatorClosed) {
		return nil
	}
	return err
}

// Close stops all processors and closes the connection to the Runtime.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.coordinator.Close()
	return c.caller.Close()
}

func (c *Client) getErrorClassifier() ErrorClassifier {
	if c.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return c.errorClassifier
}

func (c *Client) getResourceTracker() *resourceTracker {
	if c.resourceTracker == nil {
		c.resourceTracker = newResourceTracker()
	}
	return c.resourceTracker
}

// RegisterHTTPHandler adds handler to the HTTP server on port. Servers start
// with the client.
func (c *Client) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	c.httpServersMu.Lock()
	defer c.httpServersMu.Unlock()

	if c.httpServers == nil {
		c.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := c.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		c.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

// startHTTPServers serves every registered port until ctx ends.
func (c *Client) startHTTPServers(ctx context.Context) {
	c.httpServersMu.Lock()
	defer c.httpServersMu.Unlock()

	for port, mux := range c.httpServers {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: httpShutdownTimeout,
		}
		fields := loggingpkg.LogFields{"address": server.Addr}
		c.Logger.Info("Starting HTTP server", fields)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Logger.Error("Failed to start HTTP server", err, fields)
			}
		}()
		context.AfterFunc(ctx, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				c.Logger.Error("Failed to stop HTTP server", err, fields)
			}
		})
	}
}
