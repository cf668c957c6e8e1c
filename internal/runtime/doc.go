/*
Package runtime hosts the Client that keeps a microservice's processors
registered with the Runtime.

# Architecture Overview

Every processor owns one reverse call stream. The client opens the stream
through a transport Caller, sends the processor's registration as connect
arguments and then answers the requests the Runtime sends back until the
stream ends. Processors reconnect with exponential backoff; the client's
coordinator ends Start when one of them fails for good.

# Package Structure

## Client (client.go)

The Client wires together:
  - the transport Caller (gRPC, WebSocket or a pub/sub backend)
  - the reverse call Creator with ping interval, tenancy and metrics
  - the middleware chain every request passes
  - HTTP servers for metrics, the web UI and custom handlers

## Registration (registration.go)

RegisterEventHandler, RegisterFilter and RegisterProjection build a processor
for each feature and add it to the client before Start.

## Stats & Monitoring (stats.go, errorclass.go, window.go, resources.go, webui.go)

Extended statistics per processor:
  - Latency percentiles (p50, p95, p99)
  - Throughput tracking
  - Error categorization
  - Resource usage sampling
  - In-flight requests

# Sub-packages

  - reversecall/: the reverse call client state machine and keepalive
  - processing/: processor run loop, retry policy and middleware
  - coordinator/: lifetime of all processor loops
  - eventhandlers/, filters/, projections/: feature protocols and processors
  - transport/: Callers for gRPC, WebSockets and pub/sub backends
  - config/: client configuration with validation
  - errors/: sentinel errors and error types
  - events/, executioncontext/, tenancy/: request data passed to user code
  - handlers/: JSON and protobuf content decoding
  - ids/, jsoncodec/, logging/, metadata/: shared helpers

# Usage Example

	cfg := &runtimeclient.Config{
		RuntimeHost:    "localhost",
		RuntimePort:    50053,
		MicroserviceID: "f39b1f61-d360-4675-b859-53c05c87c0e6",
		MetricsEnabled: true,
		MetricsPort:    9090,
	}

	client := runtimeclient.NewClient(cfg, logger, ctx, runtimeclient.ClientDependencies{})

	runtimeclient.RegisterProjection(client, runtimeclient.Projection{
		ID:     projectionID,
		Events: []runtimeclient.EventSelector{{EventType: orderPlaced}},
		On: map[uuid.UUID]runtimeclient.ProjectionFunc{
			orderPlaced.ID: runtimeclient.OnJSON(countOrders),
		},
	})

	client.Start(ctx)
*/
package runtime
