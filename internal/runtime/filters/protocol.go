package filters

import (
	"github.com/google/uuid"

	"github.com/drblury/runtimeclient/internal/runtime/events"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

const (
	MethodPrivate     = "/dolittle.runtime.events.processing.Filters/Connect"
	MethodPartitioned = "/dolittle.runtime.events.processing.Filters/ConnectPartitioned"
	MethodPublic      = "/dolittle.runtime.events.processing.Filters/ConnectPublic"
)

// RegistrationRequest registers a filter.
type RegistrationRequest struct {
	CallContext reversecall.ArgumentsContext `json:"callContext"`
	FilterID    uuid.UUID                    `json:"filterId"`
	ScopeID     uuid.UUID                    `json:"scopeId"`
}

// RegistrationResponse carries a failure when the Runtime rejected the filter.
type RegistrationResponse struct {
	Failure *reversecall.Failure `json:"failure,omitempty"`
}

// FilterEventRequest asks the filter whether an event belongs in its stream.
type FilterEventRequest struct {
	CallContext          reversecall.RequestCallContext `json:"callContext"`
	Event                events.CommittedEvent          `json:"event"`
	ScopeID              uuid.UUID                      `json:"scopeId"`
	RetryProcessingState *events.RetryProcessingState   `json:"retryProcessingState,omitempty"`
}

// Response answers a FilterEventRequest. PartitionID is only sent by
// partitioned and public filters.
type Response struct {
	CallContext reversecall.ResponseCallContext `json:"callContext"`
	IsIncluded  bool                            `json:"isIncluded"`
	PartitionID string                          `json:"partitionId,omitempty"`
	Failure     *events.ProcessorFailure        `json:"failure,omitempty"`
}

// ClientMessage is the envelope the client writes.
type ClientMessage struct {
	RegistrationRequest *RegistrationRequest `json:"registrationRequest,omitempty"`
	FilterResult        *Response            `json:"filterResult,omitempty"`
	Pong                *reversecall.Pong    `json:"pong,omitempty"`
}

// RuntimeMessage is the envelope the Runtime writes.
type RuntimeMessage struct {
	RegistrationResponse *RegistrationResponse `json:"registrationResponse,omitempty"`
	FilterRequest        *FilterEventRequest   `json:"filterRequest,omitempty"`
	Ping                 *reversecall.Ping     `json:"ping,omitempty"`
}

// Protocol is the filter reverse call protocol for one filter kind. Filters
// have no disconnect handshake.
type Protocol struct {
	method string
}

var _ reversecall.Protocol[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, FilterEventRequest, Response] = Protocol{}

// ProtocolFor returns the protocol for kind.
func ProtocolFor(kind FilterKind) Protocol {
	return Protocol{method: kind.Method()}
}

func (p Protocol) Method() string { return p.method }

func (Protocol) WrapConnect(ac reversecall.ArgumentsContext, req RegistrationRequest) *ClientMessage {
	req.CallContext = ac
	return &ClientMessage{RegistrationRequest: &req}
}

func (Protocol) WrapPong(p reversecall.Pong) *ClientMessage { return &ClientMessage{Pong: &p} }

func (Protocol) WrapResponse(r Response) *ClientMessage { return &ClientMessage{FilterResult: &r} }

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

func (Protocol) Request(m *RuntimeMessage) (FilterEventRequest, bool) {
	if m.FilterRequest == nil {
		return FilterEventRequest{}, false
	}
	return *m.FilterRequest, true
}

func (Protocol) RequestContext(r FilterEventRequest) reversecall.RequestContext {
	return reversecall.ContextFromCall(r.CallContext)
}

func (Protocol) SetResponseContext(r Response, rc reversecall.ResponseCallContext) Response {
	r.CallContext = rc
	return r
}
