// Package transport opens the duplex streams reverse call clients run over:
// gRPC, WebSocket, or any watermill pub/sub backend registered in the public
// transport registry.
package transport

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/runtimeclient/internal/runtime/config"
	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	backends "github.com/drblury/runtimeclient/transport"

	// Register the built-in pub/sub backends.
	_ "github.com/drblury/runtimeclient/transport/transports"
)

// Caller is a method caller that owns a connection.
type Caller interface {
	reversecall.MethodCaller
	io.Closer
}

// Factory abstracts how the client reaches the Runtime.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, log logging.ServiceLogger) (Caller, error)
}

// DefaultFactory returns the built-in factory. Pub/sub names resolve through
// the default transport registry and metrics go to the default registerer.
func DefaultFactory() Factory {
	return NewFactory(backends.DefaultRegistry, prometheus.DefaultRegisterer)
}

// NewFactory returns a factory resolving pub/sub names through registry.
// registerer receives pub/sub metrics when conf.MetricsEnabled is set.
func NewFactory(registry *backends.Registry, registerer prometheus.Registerer) Factory {
	return defaultFactory{registry: registry, registerer: registerer}
}

type defaultFactory struct {
	registry   *backends.Registry
	registerer prometheus.Registerer
}

func (f defaultFactory) Build(ctx context.Context, conf *config.Config, log logging.ServiceLogger) (Caller, error) {
	if conf == nil {
		return nil, errpkg.ErrConfigRequired
	}
	log = logging.OrNop(log)
	c := conf.WithDefaults()

	switch c.RuntimeTransport {
	case config.TransportGRPC:
		conn, err := DialRuntime(c.RuntimeTarget())
		if err != nil {
			return nil, err
		}
		log.Info("Using gRPC runtime transport", logging.LogFields{"target": c.RuntimeTarget()})
		return NewGRPCCaller(conn), nil
	case config.TransportWebSocket:
		log.Info("Using WebSocket runtime transport", nil)
		return NewWebSocketCaller(c.RuntimeWebSocketURL, nil), nil
	}

	t, err := f.registry.Build(ctx, &c, logging.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	caps := f.registry.GetCapabilities(c.RuntimeTransport)
	for _, limitation := range caps.Limitations() {
		log.Info("Runtime transport limitation", logging.LogFields{
			"transport":  c.RuntimeTransport,
			"limitation": limitation,
		})
	}

	opts := PubSubOptions{
		ClientID:     c.ClientID,
		Logger:       log,
		Capabilities: caps,
	}
	if c.MetricsEnabled {
		opts.MetricsRegisterer = f.registerer
	}
	caller, err := NewPubSubCaller(t, opts)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	log.Info("Using pub/sub runtime transport", logging.LogFields{"transport": c.RuntimeTransport})
	return caller, nil
}
