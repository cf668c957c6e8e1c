package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/runtimeclient/internal/runtime/config"
	"github.com/drblury/runtimeclient/internal/runtime/eventhandlers"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	loggingpkg "github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	transportpkg "github.com/drblury/runtimeclient/internal/runtime/transport"
)

var orderPlacedType = uuid.MustParse("1d3c6c63-61b6-4d38-9a1e-6f2f0d5c4a10")

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// stubCaller never reaches a Runtime; every Call fails.
type stubCaller struct {
	closed atomic.Int32
}

func (c *stubCaller) Call(context.Context, string) (reversecall.RawStream, error) {
	return nil, io.ErrClosedPipe
}

func (c *stubCaller) Close() error {
	c.closed.Add(1)
	return nil
}

type stubFactory struct {
	caller transportpkg.Caller
	err    error
	conf   *configpkg.Config
}

func (f *stubFactory) Build(_ context.Context, conf *configpkg.Config, _ loggingpkg.ServiceLogger) (transportpkg.Caller, error) {
	f.conf = conf
	return f.caller, f.err
}

func newTestClient(t *testing.T, conf *configpkg.Config, deps ClientDependencies) *Client {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{DisablePing: true}
	}
	if deps.Caller == nil && deps.TransportFactory == nil {
		deps.Caller = &stubCaller{}
	}
	c, err := TryNewClient(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func noopEventHandler(id uuid.UUID) eventhandlers.EventHandler {
	return eventhandlers.EventHandler{
		ID: id,
		Handlers: map[uuid.UUID]eventhandlers.HandleFunc{
			orderPlacedType: func(context.Context, []byte, events.Context) error { return nil },
		},
	}
}
