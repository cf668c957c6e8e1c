package reversecall

import (
	"math"
	"time"

	"github.com/google/uuid"

	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
)

// NoPingInterval is sent as the ping interval when keepalive is disabled.
const NoPingInterval = time.Duration(math.MaxInt64)

// keepaliveFactor is how many ping intervals may pass without any message
// before the stream is considered dead.
const keepaliveFactor = 3

// ArgumentsContext is attached to the connect arguments of every stream.
type ArgumentsContext struct {
	HeadID           uuid.UUID              `json:"headId"`
	ExecutionContext ecpkg.ExecutionContext `json:"executionContext"`
	PingInterval     time.Duration          `json:"pingInterval"`
}

// RequestCallContext is carried by every request the Runtime sends.
type RequestCallContext struct {
	CallID           uuid.UUID              `json:"callId"`
	ExecutionContext ecpkg.ExecutionContext `json:"executionContext"`
}

// ResponseCallContext is stamped onto every response before it is written.
type ResponseCallContext struct {
	CallID uuid.UUID `json:"callId"`
}

// RequestContext is what the client needs from a request to dispatch it.
type RequestContext struct {
	CallID        uuid.UUID
	TenantID      uuid.UUID
	CorrelationID uuid.UUID
}

// ContextFromCall extracts a RequestContext from the wire call context.
func ContextFromCall(call RequestCallContext) RequestContext {
	return RequestContext{
		CallID:        call.CallID,
		TenantID:      call.ExecutionContext.TenantID,
		CorrelationID: call.ExecutionContext.CorrelationID,
	}
}

// Ping is sent by the Runtime to check that the client is alive.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// InitiateDisconnect asks the Runtime to end the stream once in-flight work is done.
type InitiateDisconnect struct {
	GracePeriod time.Duration `json:"gracePeriod"`
}

// DisconnectAck confirms a disconnect. Failure is set when the Runtime could
// not finish cleanly.
type DisconnectAck struct {
	Failure *Failure `json:"failure,omitempty"`
}

// Failure is a failure reported by the Runtime.
type Failure struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// Protocol describes one reverse call protocol: how to build client
// envelopes and how to pick server envelopes apart. Implementations are pure
// and hold no state.
//
// Type parameters: C client envelope, S server envelope, A connect
// arguments, R connect response, Q request, P response.
type Protocol[C, S, A, R, Q, P any] interface {
	// Method is the fully qualified stream method, e.g. "/runtime.EventHandlers/Connect".
	Method() string

	WrapConnect(ArgumentsContext, A) *C
	WrapPong(Pong) *C
	WrapResponse(P) *C

	ConnectResponse(*S) (R, bool)
	Ping(*S) (Ping, bool)
	Request(*S) (Q, bool)

	RequestContext(Q) RequestContext
	SetResponseContext(P, ResponseCallContext) P
}

// DisconnectProtocol is implemented by protocols that support the
// acknowledged disconnect handshake.
type DisconnectProtocol[C, S any] interface {
	WrapDisconnect(InitiateDisconnect) (*C, bool)
	IsDisconnectAck(*S) bool
	DisconnectFailure(*S) *Failure
}

// SupportsDisconnect reports whether p implements DisconnectProtocol.
func SupportsDisconnect[C, S, A, R, Q, P any](p Protocol[C, S, A, R, Q, P]) bool {
	_, ok := any(p).(DisconnectProtocol[C, S])
	return ok
}

// Kind classifies a server envelope.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPing
	KindConnectResponse
	KindRequest
	KindDisconnectAck
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindConnectResponse:
		return "connect_response"
	case KindRequest:
		return "request"
	case KindDisconnectAck:
		return "disconnect_ack"
	default:
		return "unknown"
	}
}

type phase uint8

const (
	phaseConnecting phase = iota
	phaseHandling
)

func (p phase) String() string {
	if p == phaseConnecting {
		return "connecting"
	}
	return "handling"
}

// envelope is a classified server message.
type envelope[S, R, Q any] struct {
	kind     Kind
	raw      *S
	response R
	request  Q
}

// classify checks a server envelope against the protocol in a fixed order:
// ping first, then the phase specific payload, then disconnect ack.
func classify[C, S, A, R, Q, P any](p Protocol[C, S, A, R, Q, P], msg *S, ph phase) envelope[S, R, Q] {
	env := envelope[S, R, Q]{kind: KindUnknown, raw: msg}
	if _, ok := p.Ping(msg); ok {
		env.kind = KindPing
		return env
	}
	switch ph {
	case phaseConnecting:
		if resp, ok := p.ConnectResponse(msg); ok {
			env.kind, env.response = KindConnectResponse, resp
			return env
		}
	case phaseHandling:
		if req, ok := p.Request(msg); ok {
			env.kind, env.request = KindRequest, req
			return env
		}
		if dp, ok := any(p).(DisconnectProtocol[C, S]); ok && dp.IsDisconnectAck(msg) {
			env.kind = KindDisconnectAck
			return env
		}
	}
	return env
}

// keepaliveDeadline returns the receive deadline for interval, or zero when
// keepalive is disabled.
func keepaliveDeadline(interval time.Duration) time.Duration {
	if interval <= 0 || interval == NoPingInterval || interval > NoPingInterval/keepaliveFactor {
		return 0
	}
	return keepaliveFactor * interval
}
