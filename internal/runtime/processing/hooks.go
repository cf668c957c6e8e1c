package processing

import (
	"context"
	"time"

	"github.com/drblury/runtimeclient/internal/runtime/logging"
)

// RequestContext is handed to request hooks.
type RequestContext struct {
	Invocation
	// Duration is only set in OnRequestDone and OnRequestError.
	Duration time.Duration
}

// RequestHooks are callbacks around every invocation of user code. Nil hooks
// are skipped.
type RequestHooks struct {
	OnRequestStart func(ctx RequestContext)
	OnRequestDone  func(ctx RequestContext)
	OnRequestError func(ctx RequestContext, err error)
}

// Merge returns hooks that call h first, then other.
func (h RequestHooks) Merge(other RequestHooks) RequestHooks {
	return RequestHooks{
		OnRequestStart: chainHooks(h.OnRequestStart, other.OnRequestStart),
		OnRequestDone:  chainHooks(h.OnRequestDone, other.OnRequestDone),
		OnRequestError: chainErrorHooks(h.OnRequestError, other.OnRequestError),
	}
}

func (h RequestHooks) empty() bool {
	return h.OnRequestStart == nil && h.OnRequestDone == nil && h.OnRequestError == nil
}

func chainHooks(a, b func(RequestContext)) func(RequestContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RequestContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(RequestContext, error)) func(RequestContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RequestContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// HooksMiddleware invokes hooks around user code. It returns nil when no hook
// is set.
func HooksMiddleware(hooks RequestHooks) Middleware {
	if hooks.empty() {
		return nil
	}
	return func(ctx context.Context, inv Invocation, next Next) error {
		started := inv.StartedAt
		if started.IsZero() {
			started = time.Now()
		}
		rc := RequestContext{Invocation: inv}
		if hooks.OnRequestStart != nil {
			hooks.OnRequestStart(rc)
		}

		err := next(ctx)

		rc.Duration = time.Since(started)
		if err != nil {
			if hooks.OnRequestError != nil {
				hooks.OnRequestError(rc, err)
			}
			return err
		}
		if hooks.OnRequestDone != nil {
			hooks.OnRequestDone(rc)
		}
		return nil
	}
}

// LoggingHooks logs request lifecycle events at info level.
func LoggingHooks(log logging.ServiceLogger) RequestHooks {
	log = logging.OrNop(log)
	return RequestHooks{
		OnRequestStart: func(ctx RequestContext) {
			log.Info("Request started", invocationFields(ctx.Invocation))
		},
		OnRequestDone: func(ctx RequestContext) {
			fields := invocationFields(ctx.Invocation)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			log.Info("Request completed", fields)
		},
		OnRequestError: func(ctx RequestContext, err error) {
			fields := invocationFields(ctx.Invocation)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			log.Error("Request failed", err, fields)
		},
	}
}

// MetricsHooks forwards request events to simple counters.
func MetricsHooks(onStart, onDone, onError func(processor, label string)) RequestHooks {
	return RequestHooks{
		OnRequestStart: func(ctx RequestContext) {
			if onStart != nil {
				onStart(ctx.Processor, ctx.Label)
			}
		},
		OnRequestDone: func(ctx RequestContext) {
			if onDone != nil {
				onDone(ctx.Processor, ctx.Label)
			}
		},
		OnRequestError: func(ctx RequestContext, err error) {
			if onError != nil {
				onError(ctx.Processor, ctx.Label)
			}
		},
	}
}

// AlertingHooks calls alert for every failed request.
func AlertingHooks(alert func(ctx RequestContext, err error)) RequestHooks {
	return RequestHooks{OnRequestError: alert}
}
