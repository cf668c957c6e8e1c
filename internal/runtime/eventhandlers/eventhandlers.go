// Package eventhandlers registers event handlers with the Runtime and runs
// the user callbacks for the events it sends.
package eventhandlers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/handlers"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// Kind names event handler processors in logs and status.
const Kind = "event-handler"

// HandleFunc handles the raw content of one event.
type HandleFunc func(ctx context.Context, content []byte, ectx events.Context) error

// On adapts a callback taking JSON decoded content.
func On[T any](fn func(ctx context.Context, event T, ectx events.Context) error) HandleFunc {
	return func(ctx context.Context, content []byte, ectx events.Context) error {
		event, err := handlers.DecodeJSON[T](content)
		if err != nil {
			return err
		}
		return fn(ctx, event, ectx)
	}
}

// OnProto adapts a callback taking protojson decoded content.
func OnProto[T proto.Message](fn func(ctx context.Context, event T, ectx events.Context) error, validator handlers.ProtoValidator) HandleFunc {
	return func(ctx context.Context, content []byte, ectx events.Context) error {
		event, err := handlers.DecodeProto[T](content, validator)
		if err != nil {
			return err
		}
		return fn(ctx, event, ectx)
	}
}

// EventHandler describes an event handler and its callbacks per event type id.
type EventHandler struct {
	ID          uuid.UUID
	Alias       string
	ScopeID     uuid.UUID
	Partitioned bool
	// Concurrency caps how many partitions the Runtime processes at once; 0
	// leaves it to the Runtime.
	Concurrency int32
	Handlers    map[uuid.UUID]HandleFunc
}

// Validate checks the handler can be registered.
func (h EventHandler) Validate() error {
	if h.ID == uuid.Nil {
		return errpkg.ErrProcessorIDRequired
	}
	if len(h.Handlers) == 0 {
		return errpkg.ErrHandlerRequired
	}
	for id, fn := range h.Handlers {
		if fn == nil {
			return fmt.Errorf("%w: event type %s", errpkg.ErrHandlerRequired, id)
		}
	}
	if h.Concurrency < 0 {
		return fmt.Errorf("event handler %s: concurrency must not be negative", h.ID)
	}
	return nil
}

// EventTypes lists the handled event types in a stable order.
func (h EventHandler) EventTypes() []events.EventType {
	types := make([]events.EventType, 0, len(h.Handlers))
	for id := range h.Handlers {
		types = append(types, events.NewEventType(id))
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID.String() < types[j].ID.String() })
	return types
}

func (h EventHandler) registration() RegistrationRequest {
	return RegistrationRequest{
		EventHandlerID: h.ID,
		ScopeID:        h.ScopeID,
		Types:          h.EventTypes(),
		Partitioned:    h.Partitioned,
		Alias:          h.Alias,
		Concurrency:    h.Concurrency,
	}
}

// Processor is the processing loop for one event handler.
type Processor = processing.Processor[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, HandleEventRequest, Response]

// NewProcessor builds the processing loop for h. chain wraps every call of a
// HandleFunc and may be nil.
func NewProcessor(h EventHandler, creator *reversecall.Creator, chain processing.Middleware, log logging.ServiceLogger, retry processing.RetryConfig) (*Processor, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	name := processorName(h)
	return processing.New(processing.Definition[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, HandleEventRequest, Response]{
		Kind:      Kind,
		ID:        h.ID,
		Alias:     h.Alias,
		Protocol:  Protocol{},
		Arguments: h.registration(),
		Accept:    accept(name),
		Handler:   handle(h, name, chain),
	}, creator, log, retry)
}

func processorName(h EventHandler) string {
	if h.Alias != "" {
		return Kind + "/" + h.Alias
	}
	return Kind + "/" + h.ID.String()
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

// handle maps a request to the callback for its event type. Callback
// failures become a failure in the response so the Runtime can retry.
func handle(h EventHandler, name string, chain processing.Middleware) reversecall.Handler[HandleEventRequest, Response] {
	return func(ctx context.Context, req HandleEventRequest, ec ecpkg.ExecutionContext, services tenancy.ServiceProvider) (Response, error) {
		event := req.Event.Event
		fn, ok := h.Handlers[event.Type.ID]
		if !ok {
			err := fmt.Errorf("event handler %s does not handle event type %s", name, event.Type)
			return Response{Failure: events.Failure(err, false, req.RetryProcessingState)}, nil
		}

		inv := processing.Invocation{
			Processor:     name,
			Kind:          Kind,
			ProcessorID:   h.ID,
			CallID:        req.CallContext.CallID,
			TenantID:      ec.TenantID,
			CorrelationID: ec.CorrelationID,
			Label:         event.Type.ID.String(),
		}
		ectx := events.NewContext(req.Event, ec, services, req.RetryProcessingState)
		err := processing.Invoke(ctx, chain, inv, func(ctx context.Context) error {
			return fn(ctx, event.Content, ectx)
		})
		if err != nil {
			return Response{Failure: events.Failure(err, retryable(err), req.RetryProcessingState)}, nil
		}
		return Response{}, nil
	}
}

func retryable(err error) bool {
	var unprocessable *handlers.UnprocessableEventError
	return !errors.As(err, &unprocessable)
}
