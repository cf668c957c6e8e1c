// Package projections registers projections with the Runtime. A projection
// folds events into read models the Runtime stores.
package projections

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/handlers"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// Kind names projection processors in logs and status.
const Kind = "projection"

// ErrDelete is returned by OnJSON callbacks to delete the read model.
var ErrDelete = errors.New("projections: delete read model")

// Context is what a projection callback gets besides state and content.
type Context struct {
	events.Context
	Key       string
	Persisted bool
}

// Result is the outcome of applying one event.
type Result struct {
	Delete bool
	State  string
}

// ReplaceWith encodes state as the new read model.
func ReplaceWith(state any) (Result, error) {
	raw, err := handlers.EncodeJSON(state)
	if err != nil {
		return Result{}, err
	}
	return Result{State: string(raw)}, nil
}

// DeleteReadModel removes the read model.
func DeleteReadModel() Result { return Result{Delete: true} }

// ProjectionFunc applies event content to the raw JSON state.
type ProjectionFunc func(ctx context.Context, state string, content []byte, pctx Context) (Result, error)

// OnJSON adapts a callback that works on decoded state and event. The
// callback returns the next state, or ErrDelete to delete the read model.
func OnJSON[S, E any](fn func(ctx context.Context, state S, event E, pctx Context) (S, error)) ProjectionFunc {
	return func(ctx context.Context, state string, content []byte, pctx Context) (Result, error) {
		current, err := handlers.DecodeJSON[S]([]byte(state))
		if err != nil {
			return Result{}, err
		}
		event, err := handlers.DecodeJSON[E](content)
		if err != nil {
			return Result{}, err
		}
		next, err := fn(ctx, current, event, pctx)
		if errors.Is(err, ErrDelete) {
			return DeleteReadModel(), nil
		}
		if err != nil {
			return Result{}, err
		}
		return ReplaceWith(next)
	}
}

// Projection describes a projection.
type Projection struct {
	ID      uuid.UUID
	Alias   string
	ScopeID uuid.UUID
	// InitialState is the JSON state a read model starts from.
	InitialState string
	Events       []EventSelector
	On           map[uuid.UUID]ProjectionFunc
}

// Validate checks the projection can be registered.
func (p Projection) Validate() error {
	if p.ID == uuid.Nil {
		return errpkg.ErrProcessorIDRequired
	}
	if len(p.Events) == 0 || len(p.On) == 0 {
		return errpkg.ErrHandlerRequired
	}
	for _, sel := range p.Events {
		if p.On[sel.EventType.ID] == nil {
			return fmt.Errorf("%w: event type %s", errpkg.ErrHandlerRequired, sel.EventType)
		}
		if sel.KeySelector.Type == KeyFromProperty && sel.KeySelector.Expression == "" {
			return fmt.Errorf("projection %s: property key selector for %s needs an expression", p.ID, sel.EventType)
		}
	}
	return nil
}

func (p Projection) initialState() string {
	if p.InitialState == "" {
		return "{}"
	}
	return p.InitialState
}

// Processor is the processing loop for one projection.
type Processor = processing.Processor[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, ProjectionRequest, Response]

// NewProcessor builds the processing loop for p. chain wraps every callback
// and may be nil.
func NewProcessor(p Projection, creator *reversecall.Creator, chain processing.Middleware, log logging.ServiceLogger, retry processing.RetryConfig) (*Processor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	name := processorName(p)
	return processing.New(processing.Definition[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, ProjectionRequest, Response]{
		Kind:     Kind,
		ID:       p.ID,
		Alias:    p.Alias,
		Protocol: Protocol{},
		Arguments: RegistrationRequest{
			ProjectionID: p.ID,
			ScopeID:      p.ScopeID,
			Alias:        p.Alias,
			InitialState: p.initialState(),
			Events:       p.Events,
		},
		Accept:  accept(name),
		Handler: handle(p, name, chain),
	}, creator, log, retry)
}

func processorName(p Projection) string {
	if p.Alias != "" {
		return Kind + "/" + p.Alias
	}
	return Kind + "/" + p.ID.String()
}

func accept(name string) func(RegistrationResponse) error {
	return func(resp RegistrationResponse) error {
		if resp.Failure == nil {
			return nil
		}
		return &errpkg.RegistrationFailedError{
			Processor: name,
			FailureID: resp.Failure.ID.String(),
			Reason:    resp.Failure.Reason,
		}
	}
}

func handle(p Projection, name string, chain processing.Middleware) reversecall.Handler[ProjectionRequest, Response] {
	return func(ctx context.Context, req ProjectionRequest, ec ecpkg.ExecutionContext, services tenancy.ServiceProvider) (Response, error) {
		event := req.Event.Event
		fn, ok := p.On[event.Type.ID]
		if !ok {
			err := fmt.Errorf("projection %s does not handle event type %s", name, event.Type)
			return Response{Failure: events.Failure(err, false, req.RetryProcessingState)}, nil
		}

		state := req.CurrentState.State
		if state == "" {
			state = p.initialState()
		}
		pctx := Context{
			Context:   events.NewContext(req.Event, ec, services, req.RetryProcessingState),
			Key:       req.CurrentState.Key,
			Persisted: req.CurrentState.Type == StatePersisted,
		}
		inv := processing.Invocation{
			Processor:     name,
			Kind:          Kind,
			ProcessorID:   p.ID,
			CallID:        req.CallContext.CallID,
			TenantID:      ec.TenantID,
			CorrelationID: ec.CorrelationID,
			Label:         event.Type.ID.String(),
		}

		var result Result
		err := processing.Invoke(ctx, chain, inv, func(ctx context.Context) error {
			var err error
			result, err = fn(ctx, state, event.Content, pctx)
			return err
		})
		switch {
		case err != nil:
			return Response{Failure: events.Failure(err, retryable(err), req.RetryProcessingState)}, nil
		case result.Delete:
			return Response{Delete: &Delete{}}, nil
		default:
			return Response{Replace: &Replace{State: result.State}}, nil
		}
	}
}

func retryable(err error) bool {
	var unprocessable *handlers.UnprocessableEventError
	return !errors.As(err, &unprocessable)
}
