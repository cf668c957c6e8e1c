package eventhandlers

import (
	"github.com/google/uuid"

	"github.com/drblury/runtimeclient/internal/runtime/events"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

// Method is the event handler stream method on the Runtime.
const Method = "/dolittle.runtime.events.processing.EventHandlers/Connect"

// RegistrationRequest registers an event handler.
type RegistrationRequest struct {
	CallContext    reversecall.ArgumentsContext `json:"callContext"`
	EventHandlerID uuid.UUID                    `json:"eventHandlerId"`
	ScopeID        uuid.UUID                    `json:"scopeId"`
	Types          []events.EventType           `json:"types"`
	Partitioned    bool                         `json:"partitioned"`
	Alias          string                       `json:"alias,omitempty"`
	Concurrency    int32                        `json:"concurrency,omitempty"`
}

// RegistrationResponse carries a failure when the Runtime rejected the handler.
type RegistrationResponse struct {
	Failure *reversecall.Failure `json:"failure,omitempty"`
}

// HandleEventRequest asks the handler to process one event.
type HandleEventRequest struct {
	CallContext          reversecall.RequestCallContext `json:"callContext"`
	Event                events.StreamEvent             `json:"event"`
	RetryProcessingState *events.RetryProcessingState   `json:"retryProcessingState,omitempty"`
}

// Response answers a HandleEventRequest.
type Response struct {
	CallContext reversecall.ResponseCallContext `json:"callContext"`
	Failure     *events.ProcessorFailure        `json:"failure,omitempty"`
}

// ClientMessage is the envelope the client writes.
type ClientMessage struct {
	RegistrationRequest *RegistrationRequest            `json:"registrationRequest,omitempty"`
	HandleResult        *Response                       `json:"handleResult,omitempty"`
	Pong                *reversecall.Pong               `json:"pong,omitempty"`
	InitiateDisconnect  *reversecall.InitiateDisconnect `json:"initiateDisconnect,omitempty"`
}

// RuntimeMessage is the envelope the Runtime writes.
type RuntimeMessage struct {
	RegistrationResponse *RegistrationResponse      `json:"registrationResponse,omitempty"`
	HandleRequest        *HandleEventRequest        `json:"handleRequest,omitempty"`
	Ping                 *reversecall.Ping          `json:"ping,omitempty"`
	DisconnectAck        *reversecall.DisconnectAck `json:"disconnectAck,omitempty"`
}

// Protocol is the event handler reverse call protocol. It supports the
// disconnect handshake.
type Protocol struct{}

var (
	_ reversecall.Protocol[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, HandleEventRequest, Response] = Protocol{}
	_ reversecall.DisconnectProtocol[ClientMessage, RuntimeMessage]                                                                = Protocol{}
)

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

func (Protocol) Request(m *RuntimeMessage) (HandleEventRequest, bool) {
	if m.HandleRequest == nil {
		return HandleEventRequest{}, false
	}
	return *m.HandleRequest, true
}

func (Protocol) RequestContext(r HandleEventRequest) reversecall.RequestContext {
	return reversecall.ContextFromCall(r.CallContext)
}

func (Protocol) SetResponseContext(r Response, rc reversecall.ResponseCallContext) Response {
	r.CallContext = rc
	return r
}

func (Protocol) WrapDisconnect(d reversecall.InitiateDisconnect) (*ClientMessage, bool) {
	return &ClientMessage{InitiateDisconnect: &d}, true
}

func (Protocol) IsDisconnectAck(m *RuntimeMessage) bool { return m.DisconnectAck != nil }

func (Protocol) DisconnectFailure(m *RuntimeMessage) *reversecall.Failure {
	if m.DisconnectAck == nil {
		return nil
	}
	return m.DisconnectAck.Failure
}
