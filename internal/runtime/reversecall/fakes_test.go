package reversecall

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
)

const testMethod = "/runtime.Test/Connect"

type testConnect struct {
	Context ArgumentsContext
	Name    string
}

type testConnectResponse struct {
	Accepted bool
}

type testRequest struct {
	Call  RequestCallContext
	Value string
}

type testResponse struct {
	CallID uuid.UUID
	Value  string
}

type testClient struct {
	Connect    *testConnect
	Pong       *Pong
	Response   *testResponse
	Disconnect *InitiateDisconnect
}

type testServer struct {
	Ping            *Ping
	ConnectResponse *testConnectResponse
	Request         *testRequest
	DisconnectAck   *DisconnectAck
	Other           string
}

type testProtocol struct{}

func (testProtocol) Method() string { return testMethod }

func (testProtocol) WrapConnect(ac ArgumentsContext, name string) *testClient {
	return &testClient{Connect: &testConnect{Context: ac, Name: name}}
}

func (testProtocol) WrapPong(p Pong) *testClient { return &testClient{Pong: &p} }

func (testProtocol) WrapResponse(r testResponse) *testClient { return &testClient{Response: &r} }

func (testProtocol) ConnectResponse(s *testServer) (testConnectResponse, bool) {
	if s.ConnectResponse == nil {
		return testConnectResponse{}, false
	}
	return *s.ConnectResponse, true
}

func (testProtocol) Ping(s *testServer) (Ping, bool) {
	if s.Ping == nil {
		return Ping{}, false
	}
	return *s.Ping, true
}

func (testProtocol) Request(s *testServer) (testRequest, bool) {
	if s.Request == nil {
		return testRequest{}, false
	}
	return *s.Request, true
}

func (testProtocol) RequestContext(q testRequest) RequestContext { return ContextFromCall(q.Call) }

func (testProtocol) SetResponseContext(p testResponse, rc ResponseCallContext) testResponse {
	p.CallID = rc.CallID
	return p
}

type disconnectingProtocol struct {
	testProtocol
}

func (disconnectingProtocol) WrapDisconnect(d InitiateDisconnect) (*testClient, bool) {
	return &testClient{Disconnect: &d}, true
}

func (disconnectingProtocol) IsDisconnectAck(s *testServer) bool { return s.DisconnectAck != nil }

func (disconnectingProtocol) DisconnectFailure(s *testServer) *Failure {
	if s.DisconnectAck == nil {
		return nil
	}
	return s.DisconnectAck.Failure
}

// fakeStream is an in-memory RawStream. Tests push server messages or errors
// with serve/fail and read what the client wrote from sent.
type fakeStream struct {
	ctx   context.Context
	inbox chan any
	sent  chan *testClient

	mu         sync.Mutex
	sendErr    error
	closedSend bool

	// sendDelay widens the window in which overlapping writes are detected.
	sendDelay       time.Duration
	writers         atomic.Int32
	overlapped      atomic.Bool
	closeOverlapped atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		ctx:   context.Background(),
		inbox: make(chan any, 64),
		sent:  make(chan *testClient, 64),
	}
}

func (f *fakeStream) SendMsg(m any) error {
	if f.writers.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	defer f.writers.Add(-1)
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.sent <- m.(*testClient)
	return nil
}

func (f *fakeStream) RecvMsg(m any) error {
	select {
	case <-f.ctx.Done():
		return f.ctx.Err()
	case item := <-f.inbox:
		switch v := item.(type) {
		case error:
			return v
		case *testServer:
			*m.(*testServer) = *v
			return nil
		}
		return errors.New("fake stream: unexpected item")
	}
}

func (f *fakeStream) CloseSend() error {
	if f.writers.Load() > 0 {
		f.closeOverlapped.Store(true)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedSend = true
	return nil
}

func (f *fakeStream) closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closedSend
}

func (f *fakeStream) serve(msg *testServer) { f.inbox <- msg }

func (f *fakeStream) fail(err error) { f.inbox <- err }

func (f *fakeStream) end() { f.fail(io.EOF) }

func (f *fakeStream) next(t *testing.T) *testClient {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to write")
		return nil
	}
}

func (f *fakeStream) nothingSent(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case m := <-f.sent:
		t.Fatalf("unexpected write %+v", m)
	case <-time.After(wait):
	}
}

func (f *fakeStream) caller() MethodCaller {
	return MethodCallerFunc(func(ctx context.Context, method string) (RawStream, error) {
		if method != testMethod {
			return nil, errors.New("fake stream: unexpected method " + method)
		}
		f.ctx = ctx
		return f, nil
	})
}

var (
	testMicroservice = uuid.MustParse("f39b1f61-d360-4675-b859-53c05c87c0e6")
	testTenant       = uuid.MustParse("900893e7-c4cc-4873-8032-884e965e4b97")
)

func testExecutionContext() ecpkg.ExecutionContext {
	return ecpkg.New(testMicroservice, ecpkg.Version{Major: 1, Minor: 2, Patch: 3}, "Test")
}

func newTestClient(t *testing.T, stream *fakeStream, opts ...CreatorOption) *Client[testClient, testServer, string, testConnectResponse, testRequest, testResponse] {
	t.Helper()
	cr, err := NewCreator(stream.caller(), testExecutionContext(), logging.NewNopLogger(), opts...)
	require.NoError(t, err)
	client, err := Create[testClient, testServer, string, testConnectResponse, testRequest, testResponse](cr, testProtocol{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newDisconnectingClient(t *testing.T, stream *fakeStream) *Client[testClient, testServer, string, testConnectResponse, testRequest, testResponse] {
	t.Helper()
	cr, err := NewCreator(stream.caller(), testExecutionContext(), logging.NewNopLogger())
	require.NoError(t, err)
	client, err := Create[testClient, testServer, string, testConnectResponse, testRequest, testResponse](cr, disconnectingProtocol{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// connected drives client through a successful Connect.
func connected(t *testing.T, client *Client[testClient, testServer, string, testConnectResponse, testRequest, testResponse], stream *fakeStream) {
	t.Helper()
	stream.serve(&testServer{ConnectResponse: &testConnectResponse{Accepted: true}})
	ok, err := client.Connect(context.Background(), "processor")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, stream.next(t).Connect)
}

func request(value string) *testServer {
	return requestFor(uuid.New(), testTenant, uuid.New(), value)
}

func requestFor(callID, tenant, correlation uuid.UUID, value string) *testServer {
	ec := testExecutionContext().ForTenant(tenant).ForCorrelation(correlation)
	return &testServer{Request: &testRequest{
		Call:  RequestCallContext{CallID: callID, ExecutionContext: ec},
		Value: value,
	}}
}
