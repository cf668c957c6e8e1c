package processing

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

type connected struct {
	Failure string
}

type request struct {
	Call  reversecall.RequestCallContext
	Value string
}

type response struct {
	CallID uuid.UUID
	Value  string
}

type clientMsg struct {
	Connect    *string
	Pong       bool
	Response   *response
	Disconnect *reversecall.InitiateDisconnect
}

type serverMsg struct {
	Ping      bool
	Connected *connected
	Request   *request
	Ack       bool
}

type protocol struct{}

func (protocol) Method() string { return "/runtime.Test/Connect" }
func (protocol) WrapConnect(_ reversecall.ArgumentsContext, a string) *clientMsg {
	return &clientMsg{Connect: &a}
}
func (protocol) WrapPong(reversecall.Pong) *clientMsg { return &clientMsg{Pong: true} }
func (protocol) WrapResponse(r response) *clientMsg   { return &clientMsg{Response: &r} }
func (protocol) ConnectResponse(s *serverMsg) (connected, bool) {
	if s.Connected == nil {
		return connected{}, false
	}
	return *s.Connected, true
}
func (protocol) Ping(s *serverMsg) (reversecall.Ping, bool) { return reversecall.Ping{}, s.Ping }
func (protocol) Request(s *serverMsg) (request, bool) {
	if s.Request == nil {
		return request{}, false
	}
	return *s.Request, true
}
func (protocol) RequestContext(q request) reversecall.RequestContext {
	return reversecall.ContextFromCall(q.Call)
}
func (protocol) SetResponseContext(p response, rc reversecall.ResponseCallContext) response {
	p.CallID = rc.CallID
	return p
}

type disconnecting struct{ protocol }

func (disconnecting) WrapDisconnect(d reversecall.InitiateDisconnect) (*clientMsg, bool) {
	return &clientMsg{Disconnect: &d}, true
}
func (disconnecting) IsDisconnectAck(s *serverMsg) bool                 { return s.Ack }
func (disconnecting) DisconnectFailure(*serverMsg) *reversecall.Failure { return nil }

// stream is one fake stream; runtime hands them out per Call.
type stream struct {
	ctx   context.Context
	inbox chan any
	sent  chan *clientMsg
}

func (s *stream) SendMsg(m any) error {
	select {
	case s.sent <- m.(*clientMsg):
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *stream) RecvMsg(m any) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case item := <-s.inbox:
		if err, ok := item.(error); ok {
			return err
		}
		*m.(*serverMsg) = *item.(*serverMsg)
		return nil
	}
}

func (s *stream) CloseSend() error { return nil }

func (s *stream) serve(m *serverMsg) { s.inbox <- m }

func (s *stream) end() { s.inbox <- io.EOF }

func (s *stream) next() (*clientMsg, error) {
	select {
	case m := <-s.sent:
		return m, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("no message from client")
	}
}

// runtime scripts how each connection attempt behaves.
type runtime struct {
	script func(attempt int, s *stream)

	mu      sync.Mutex
	calls   int
	streams []*stream
}

func (r *runtime) Call(ctx context.Context, _ string) (reversecall.RawStream, error) {
	r.mu.Lock()
	r.calls++
	attempt := r.calls
	s := &stream{ctx: ctx, inbox: make(chan any, 16), sent: make(chan *clientMsg, 16)}
	r.streams = append(r.streams, s)
	r.mu.Unlock()
	go r.script(attempt, s)
	return s, nil
}

func (r *runtime) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testEC() ecpkg.ExecutionContext {
	return ecpkg.New(uuid.New(), ecpkg.Version{Major: 1}, "Test")
}

func echo(_ context.Context, q request, _ ecpkg.ExecutionContext, _ tenancy.ServiceProvider) (response, error) {
	return response{Value: q.Value}, nil
}

func acceptAll(connected) error { return nil }

func rejectFailures(c connected) error {
	if c.Failure != "" {
		return errors.New(c.Failure)
	}
	return nil
}

func newRequest(value string) *serverMsg {
	return &serverMsg{Request: &request{
		Call:  reversecall.RequestCallContext{CallID: uuid.New(), ExecutionContext: testEC()},
		Value: value,
	}}
}
