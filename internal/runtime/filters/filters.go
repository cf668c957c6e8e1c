// Package filters registers event filters with the Runtime. A filter decides
// for every committed event whether it goes into the filter's stream.
package filters

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

// FilterKind selects the stream method and the shape of results.
type FilterKind uint8

const (
	// Private filters write an unpartitioned stream in their scope.
	Private FilterKind = iota
	// Partitioned filters assign every included event a partition.
	Partitioned
	// Public filters write a partitioned public stream other microservices
	// can subscribe to. They only see public events in the default scope.
	Public
)

func (k FilterKind) String() string {
	switch k {
	case Private:
		return "private"
	case Partitioned:
		return "partitioned"
	case Public:
		return "public"
	default:
		return "unknown"
	}
}

// Method returns the stream method for k.
func (k FilterKind) Method() string {
	switch k {
	case Partitioned:
		return MethodPartitioned
	case Public:
		return MethodPublic
	default:
		return MethodPrivate
	}
}

func (k FilterKind) partitioned() bool { return k == Partitioned || k == Public }

// Kind names filter processors in logs and status.
const Kind = "filter"

// Result is what a predicate decides for one event.
type Result struct {
	Included    bool
	PartitionID string
}

// Predicate decides whether event goes into the stream.
type Predicate func(ctx context.Context, event events.CommittedEvent, ectx events.Context) (Result, error)

// Filter describes a filter.
type Filter struct {
	ID        uuid.UUID
	ScopeID   uuid.UUID
	Kind      FilterKind
	Predicate Predicate
}

// Validate checks the filter can be registered.
func (f Filter) Validate() error {
	if f.ID == uuid.Nil {
		return errpkg.ErrProcessorIDRequired
	}
	if f.Predicate == nil {
		return errpkg.ErrHandlerRequired
	}
	if f.Kind > Public {
		return fmt.Errorf("filter %s: unknown kind %d", f.ID, f.Kind)
	}
	if f.Kind == Public && f.ScopeID != uuid.Nil {
		return fmt.Errorf("filter %s: public filters run in the default scope", f.ID)
	}
	return nil
}

// Processor is the processing loop for one filter.
type Processor = processing.Processor[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, FilterEventRequest, Response]

// NewProcessor builds the processing loop for f. chain wraps every predicate
// call and may be nil.
func NewProcessor(f Filter, creator *reversecall.Creator, chain processing.Middleware, log logging.ServiceLogger, retry processing.RetryConfig) (*Processor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	name := processorName(f)
	return processing.New(processing.Definition[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, FilterEventRequest, Response]{
		Kind:      Kind,
		ID:        f.ID,
		Alias:     f.Kind.String() + "/" + f.ID.String(),
		Protocol:  ProtocolFor(f.Kind),
		Arguments: RegistrationRequest{FilterID: f.ID, ScopeID: f.ScopeID},
		Accept:    accept(name),
		Handler:   handle(f, name, chain),
	}, creator, log, retry)
}

func processorName(f Filter) string {
	return Kind + "/" + f.Kind.String() + "/" + f.ID.String()
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

func handle(f Filter, name string, chain processing.Middleware) reversecall.Handler[FilterEventRequest, Response] {
	return func(ctx context.Context, req FilterEventRequest, ec ecpkg.ExecutionContext, services tenancy.ServiceProvider) (Response, error) {
		if f.Kind == Public && !req.Event.Public {
			return Response{}, nil
		}

		inv := processing.Invocation{
			Processor:     name,
			Kind:          Kind,
			ProcessorID:   f.ID,
			CallID:        req.CallContext.CallID,
			TenantID:      ec.TenantID,
			CorrelationID: ec.CorrelationID,
			Label:         req.Event.Type.ID.String(),
		}
		se := events.StreamEvent{Event: req.Event, ScopeID: req.ScopeID}
		ectx := events.NewContext(se, ec, services, req.RetryProcessingState)

		var result Result
		err := processing.Invoke(ctx, chain, inv, func(ctx context.Context) error {
			var err error
			result, err = f.Predicate(ctx, req.Event, ectx)
			return err
		})
		if err != nil {
			return Response{Failure: events.Failure(err, retryable(err), req.RetryProcessingState)}, nil
		}

		resp := Response{IsIncluded: result.Included}
		if f.Kind.partitioned() && result.Included {
			resp.PartitionID = result.PartitionID
			if resp.PartitionID == "" {
				resp.PartitionID = req.Event.EventSourceID
			}
		}
		return resp, nil
	}
}

func retryable(err error) bool {
	var unprocessable *handlers.UnprocessableEventError
	return !errors.As(err, &unprocessable)
}

// ByEventTypes returns a predicate that includes events of the given types.
// Partitioned kinds partition by event source.
func ByEventTypes(types ...uuid.UUID) Predicate {
	set := make(map[uuid.UUID]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(_ context.Context, event events.CommittedEvent, _ events.Context) (Result, error) {
		_, ok := set[event.Type.ID]
		return Result{Included: ok, PartitionID: event.EventSourceID}, nil
	}
}
