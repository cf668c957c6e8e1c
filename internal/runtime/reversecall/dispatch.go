package reversecall

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// dispatch runs handler for req on its own goroutine. The receive loop never
// waits for it.
func (c *Client[C, S, A, R, Q, P]) dispatch(ctx context.Context, handler Handler[Q, P], req Q) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.dispatches.Add(1)
	c.mu.Unlock()

	c.metrics.requestStarted(c.method)
	go func() {
		defer c.dispatches.Done()
		started := time.Now()
		outcome := c.serve(ctx, handler, req)
		c.metrics.requestFinished(c.method, outcome, time.Since(started))
	}()
}

func (c *Client[C, S, A, R, Q, P]) serve(ctx context.Context, handler Handler[Q, P], req Q) (outcome string) {
	rc := c.protocol.RequestContext(req)
	log := c.log.With(logging.LogFields{
		"call_id":        rc.CallID.String(),
		"tenant_id":      rc.TenantID.String(),
		"correlation_id": rc.CorrelationID.String(),
	})

	defer func() {
		if r := recover(); r != nil {
			log.Error("Request handler panicked, no response sent", fmt.Errorf("panic: %v", r), logging.LogFields{
				"stack": string(debug.Stack()),
			})
			outcome = outcomePanicked
		}
	}()

	ec := c.ec.ForTenant(rc.TenantID).ForCorrelation(rc.CorrelationID)
	resp, err := handler(ctx, req, ec, c.services(rc))
	if err != nil {
		log.Error("Request handler failed, no response sent", err, nil)
		return outcomeFailed
	}

	resp = c.protocol.SetResponseContext(resp, ResponseCallContext{CallID: rc.CallID})
	if err := c.write(ctx, c.protocol.WrapResponse(resp)); err != nil {
		log.Error("Could not write response", err, nil)
		return outcomeWriteFailed
	}
	return outcomeResponded
}

func (c *Client[C, S, A, R, Q, P]) services(rc RequestContext) tenancy.ServiceProvider {
	if c.providers == nil {
		return tenancy.Services{}
	}
	return c.providers.ForTenant(rc.TenantID)
}
