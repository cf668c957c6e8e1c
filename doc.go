// Package runtimeclient connects event handlers, filters and projections of a
// microservice to the Runtime over long-lived reverse call streams. The client
// dials the Runtime, registers every processor, answers the Runtime's requests
// and keeps the registration alive with pings and reconnects.
//
// A minimal setup fills Config, creates a Client, registers processors and
// calls Start:
//
//	client := runtimeclient.NewClient(cfg, logger, ctx, runtimeclient.ClientDependencies{})
//	err := runtimeclient.RegisterEventHandler(client, runtimeclient.EventHandler{
//		ID:          handlerID,
//		Partitioned: true,
//		Handlers: map[uuid.UUID]runtimeclient.HandleFunc{
//			orderPlacedType: runtimeclient.On(handleOrderPlaced),
//		},
//	})
//	if err != nil {
//		return err
//	}
//	return client.Start(ctx)
//
// # Transports
//
// Reverse call streams reach the Runtime over gRPC (the default), WebSockets,
// or any pub/sub backend registered in the transport registry:
//   - grpc: bidirectional gRPC streams
//   - websocket: one WebSocket connection per stream
//   - channel: in-memory Go channels for tests
//   - kafka, rabbitmq, nats, http, aws: Watermill backends
//
// The built-in backends are always registered. Custom backends join the
// registry through RegisterTransport, or a dedicated registry passed to
// NewTransportFactory.
//
// # Middleware
//
// Every request the Runtime sends passes a middleware chain before it reaches
// user code. The default chain logs, traces with OpenTelemetry and recovers
// panics. RequestHooks add OnRequestStart, OnRequestDone and OnRequestError
// callbacks, and ClientDependencies.Middlewares appends custom middleware.
//
// # Monitoring
//
// With WebUIEnabled the client serves /api/processors with the status and
// statistics of every processor. With MetricsEnabled it registers Prometheus
// collectors and serves /metrics on MetricsPort.
package runtimeclient
