package projections

import (
	"github.com/google/uuid"

	"github.com/drblury/runtimeclient/internal/runtime/events"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

// Method is the projection stream method on the Runtime.
const Method = "/dolittle.runtime.projections.Projections/Connect"

// KeySelectorType picks where the read model key of an event comes from.
type KeySelectorType string

const (
	KeyFromEventSource KeySelectorType = "eventSourceId"
	KeyFromPartition   KeySelectorType = "partitionId"
	KeyFromProperty    KeySelectorType = "property"
)

// KeySelector selects the read model key for an event type.
type KeySelector struct {
	Type KeySelectorType `json:"type"`
	// Expression is the property name when Type is KeyFromProperty.
	Expression string `json:"expression,omitempty"`
}

// EventSelector ties an event type to its key selector.
type EventSelector struct {
	EventType   events.EventType `json:"eventType"`
	KeySelector KeySelector      `json:"keySelector"`
}

// RegistrationRequest registers a projection.
type RegistrationRequest struct {
	CallContext  reversecall.ArgumentsContext `json:"callContext"`
	ProjectionID uuid.UUID                    `json:"projectionId"`
	ScopeID      uuid.UUID                    `json:"scopeId"`
	Alias        string                       `json:"alias,omitempty"`
	InitialState string                       `json:"initialState"`
	Events       []EventSelector              `json:"events"`
}

// RegistrationResponse carries a failure when the Runtime rejected the projection.
type RegistrationResponse struct {
	Failure *reversecall.Failure `json:"failure,omitempty"`
}

// CurrentStateType tells whether the state came from storage.
type CurrentStateType string

const (
	StateInitial   CurrentStateType = "initial"
	StatePersisted CurrentStateType = "persisted"
)

// CurrentState is the read model state before the event is applied.
type CurrentState struct {
	Type  CurrentStateType `json:"type"`
	Key   string           `json:"key"`
	State string           `json:"state"`
}

// ProjectionRequest asks the projection to apply an event to a read model.
type ProjectionRequest struct {
	CallContext          reversecall.RequestCallContext `json:"callContext"`
	CurrentState         CurrentState                   `json:"currentState"`
	Event                events.StreamEvent             `json:"event"`
	RetryProcessingState *events.RetryProcessingState   `json:"retryProcessingState,omitempty"`
}

// Replace carries the new read model state.
type Replace struct {
	State string `json:"state"`
}

// Delete removes the read model.
type Delete struct{}

// Response answers a ProjectionRequest with exactly one of Replace, Delete
// or Failure.
type Response struct {
	CallContext reversecall.ResponseCallContext `json:"callContext"`
	Replace     *Replace                        `json:"replace,omitempty"`
	Delete      *Delete                         `json:"delete,omitempty"`
	Failure     *events.ProcessorFailure        `json:"failure,omitempty"`
}

// ClientMessage is the envelope the client writes.
type ClientMessage struct {
	RegistrationRequest *RegistrationRequest `json:"registrationRequest,omitempty"`
	HandleResult        *Response            `json:"handleResult,omitempty"`
	Pong                *reversecall.Pong    `json:"pong,omitempty"`
}

// RuntimeMessage is the envelope the Runtime writes.
type RuntimeMessage struct {
	RegistrationResponse *RegistrationResponse `json:"registrationResponse,omitempty"`
	HandleRequest        *ProjectionRequest    `json:"handleRequest,omitempty"`
	Ping                 *reversecall.Ping     `json:"ping,omitempty"`
}

// Protocol is the projection reverse call protocol.
type Protocol struct{}

var _ reversecall.Protocol[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, ProjectionRequest, Response] = Protocol{}

func (Protocol) Method() string { return Method }

func (Protocol) WrapConnect(ac reversecall.ArgumentsContext, req RegistrationRequest) *ClientMessage {
	req.CallContext = ac
	return &ClientMessage{RegistrationRequest: &req}
}

func (Protocol) WrapPong(p reversecall.Pong) *ClientMessage { return &ClientMessage{Pong: &p} }

func (Protocol) WrapResponse(r Response) *ClientMessage { return &ClientMessage{HandleResult: &r} }

func (Protocol) ConnectResponse(m *RuntimeMessage) (RegistrationResponse, bool) {
	if m.RegistrationResponse == nil {
		return RegistrationResponse{}, false
	}
	return *m.RegistrationResponse, true
}

func (Protocol) Ping(m *RuntimeMessage) (reversecall.Ping, bool) {
	if m.Ping == nil {
		return reversecall.Ping{}, false
	}
	return *m.Ping, true
}

func (Protocol) Request(m *RuntimeMessage) (ProjectionRequest, bool) {
	if m.HandleRequest == nil {
		return ProjectionRequest{}, false
	}
	return *m.HandleRequest, true
}

func (Protocol) RequestContext(r ProjectionRequest) reversecall.RequestContext {
	return reversecall.ContextFromCall(r.CallContext)
}

func (Protocol) SetResponseContext(r Response, rc reversecall.ResponseCallContext) Response {
	r.CallContext = rc
	return r
}
