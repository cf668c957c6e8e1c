package processing

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/runtimeclient/internal/runtime/logging"
)

// Invocation describes one call of user code by a processor.
type Invocation struct {
	// Processor is the registered processor name, e.g. "event-handler/<id>".
	Processor     string
	Kind          string
	ProcessorID   uuid.UUID
	CallID        uuid.UUID
	TenantID      uuid.UUID
	CorrelationID uuid.UUID
	// Label names what is being handled, for example the event type.
	Label     string
	StartedAt time.Time
}

// Next continues the chain.
type Next func(ctx context.Context) error

// Middleware wraps the invocation of user code.
type Middleware func(ctx context.Context, inv Invocation, next Next) error

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	filtered := make([]Middleware, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			filtered = append(filtered, mw)
		}
	}
	return func(ctx context.Context, inv Invocation, next Next) error {
		call := next
		for i := len(filtered) - 1; i >= 0; i-- {
			mw, inner := filtered[i], call
			call = func(ctx context.Context) error { return mw(ctx, inv, inner) }
		}
		return call(ctx)
	}
}

// Invoke runs call through mw. A nil mw runs call directly.
func Invoke(ctx context.Context, mw Middleware, inv Invocation, call Next) error {
	if inv.StartedAt.IsZero() {
		inv.StartedAt = time.Now()
	}
	if mw == nil {
		return call(ctx)
	}
	return mw(ctx, inv, call)
}

// DefaultMiddlewares returns the chain every client uses unless disabled.
func DefaultMiddlewares(log logging.ServiceLogger) []Middleware {
	return []Middleware{
		LoggingMiddleware(log),
		TracingMiddleware(),
		RecovererMiddleware(),
	}
}

// RecovererMiddleware turns panics in user code into errors.
func RecovererMiddleware() Middleware {
	return func(ctx context.Context, inv Invocation, next Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &middleware.RecoveredPanicError{V: r, Stacktrace: string(debug.Stack())}
			}
		}()
		return next(ctx)
	}
}

// LoggingMiddleware logs every invocation and its failure.
func LoggingMiddleware(log logging.ServiceLogger) Middleware {
	log = logging.OrNop(log)
	return func(ctx context.Context, inv Invocation, next Next) error {
		fields := invocationFields(inv)
		log.Debug("Handling request", fields)
		err := next(ctx)
		if err != nil {
			log.Error("Request failed", err, fields)
		}
		return err
	}
}

// TracingMiddleware wraps user code in an OpenTelemetry span.
func TracingMiddleware() Middleware {
	return func(ctx context.Context, inv Invocation, next Next) error {
		tracer := otel.Tracer("runtimeclient")
		ctx, span := tracer.Start(ctx, "HandleRequest", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		span.SetAttributes(
			attribute.String("processor.name", inv.Processor),
			attribute.String("processor.kind", inv.Kind),
			attribute.String("processor.id", inv.ProcessorID.String()),
			attribute.String("call.id", inv.CallID.String()),
			attribute.String("tenant.id", inv.TenantID.String()),
			attribute.String("correlation.id", inv.CorrelationID.String()),
			attribute.String("request.label", inv.Label),
		)
		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		return err
	}
}

func invocationFields(inv Invocation) logging.LogFields {
	fields := logging.LogFields{
		"processor":      inv.Processor,
		"call_id":        inv.CallID.String(),
		"tenant_id":      inv.TenantID.String(),
		"correlation_id": inv.CorrelationID.String(),
	}
	if inv.Label != "" {
		fields["label"] = inv.Label
	}
	return fields
}
