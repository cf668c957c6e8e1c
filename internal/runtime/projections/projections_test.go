package projections

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

var (
	itemAdded   = uuid.MustParse("3f0c5a41-5c53-4b1d-8d33-3cbd29a5d101")
	cartEmptied = uuid.MustParse("9a4e2b8e-7a0d-4b6e-b1de-5a1f3f6bd102")
)

type cart struct {
	Items []string `json:"items"`
}

type added struct {
	Item string `json:"item"`
}

func testEC() ecpkg.ExecutionContext {
	return ecpkg.New(uuid.New(), ecpkg.NotSet, "Test")
}

func cartProjection() Projection {
	return Projection{
		ID:    uuid.New(),
		Alias: "carts",
		Events: []EventSelector{
			{EventType: events.NewEventType(itemAdded), KeySelector: KeySelector{Type: KeyFromEventSource}},
			{EventType: events.NewEventType(cartEmptied), KeySelector: KeySelector{Type: KeyFromEventSource}},
		},
		On: map[uuid.UUID]ProjectionFunc{
			itemAdded: OnJSON(func(_ context.Context, c cart, e added, _ Context) (cart, error) {
				c.Items = append(c.Items, e.Item)
				return c, nil
			}),
			cartEmptied: OnJSON(func(context.Context, cart, struct{}, Context) (cart, error) {
				return cart{}, ErrDelete
			}),
		},
	}
}

func requestFor(typ uuid.UUID, state CurrentState, content string) ProjectionRequest {
	return ProjectionRequest{
		CallContext:  reversecall.RequestCallContext{CallID: uuid.New(), ExecutionContext: testEC()},
		CurrentState: state,
		Event: events.StreamEvent{Event: events.CommittedEvent{
			EventSourceID: "cart-1",
			Type:          events.NewEventType(typ),
			Content:       []byte(content),
		}},
	}
}

func call(t *testing.T, p Projection, req ProjectionRequest) Response {
	t.Helper()
	resp, err := handle(p, processorName(p), nil)(context.Background(), req, testEC(), tenancy.Services{})
	require.NoError(t, err)
	return resp
}

func TestValidate(t *testing.T) {
	valid := cartProjection()
	assert.NoError(t, valid.Validate())

	noID := cartProjection()
	noID.ID = uuid.Nil
	assert.ErrorIs(t, noID.Validate(), errpkg.ErrProcessorIDRequired)

	missing := cartProjection()
	delete(missing.On, cartEmptied)
	assert.ErrorIs(t, missing.Validate(), errpkg.ErrHandlerRequired)

	property := cartProjection()
	property.Events[0].KeySelector = KeySelector{Type: KeyFromProperty}
	assert.Error(t, property.Validate())
}

func TestHandleReplacesState(t *testing.T) {
	p := cartProjection()
	resp := call(t, p, requestFor(itemAdded, CurrentState{Type: StatePersisted, Key: "cart-1", State: `{"items":["apple"]}`}, `{"item":"pear"}`))
	require.Nil(t, resp.Failure)
	require.NotNil(t, resp.Replace)
	assert.JSONEq(t, `{"items":["apple","pear"]}`, resp.Replace.State)
}

func TestHandleStartsFromInitialState(t *testing.T) {
	p := cartProjection()
	p.InitialState = `{"items":["gift"]}`
	resp := call(t, p, requestFor(itemAdded, CurrentState{Type: StateInitial, Key: "cart-1"}, `{"item":"pear"}`))
	require.NotNil(t, resp.Replace)
	assert.JSONEq(t, `{"items":["gift","pear"]}`, resp.Replace.State)
}

func TestHandleDeletesReadModel(t *testing.T) {
	resp := call(t, cartProjection(), requestFor(cartEmptied, CurrentState{Type: StatePersisted, State: `{"items":[]}`}, `{}`))
	assert.NotNil(t, resp.Delete)
	assert.Nil(t, resp.Replace)
	assert.Nil(t, resp.Failure)
}

func TestHandleFailures(t *testing.T) {
	tests := []struct {
		name      string
		typ       uuid.UUID
		content   string
		on        ProjectionFunc
		wantRetry bool
	}{
		{name: "unknown event type", typ: uuid.New(), content: `{}`},
		{name: "undecodable content", typ: itemAdded, content: `not json`},
		{
			name: "callback error", typ: itemAdded, content: `{}`, wantRetry: true,
			on: func(context.Context, string, []byte, Context) (Result, error) {
				return Result{}, errors.New("read model store down")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cartProjection()
			if tt.on != nil {
				p.On[itemAdded] = tt.on
			}
			resp := call(t, p, requestFor(tt.typ, CurrentState{Type: StateInitial}, tt.content))
			require.NotNil(t, resp.Failure)
			assert.Equal(t, tt.wantRetry, resp.Failure.Retry)
			assert.Nil(t, resp.Replace)
			assert.Nil(t, resp.Delete)
		})
	}
}

func TestHandlePassesKeyAndPersistence(t *testing.T) {
	var got Context
	p := cartProjection()
	p.On[itemAdded] = func(_ context.Context, state string, _ []byte, pctx Context) (Result, error) {
		got = pctx
		return Result{State: state}, nil
	}
	call(t, p, requestFor(itemAdded, CurrentState{Type: StatePersisted, Key: "cart-1", State: `{}`}, `{}`))
	assert.Equal(t, "cart-1", got.Key)
	assert.True(t, got.Persisted)
	assert.Equal(t, "cart-1", got.EventSourceID)
}

func TestProtocolWrapping(t *testing.T) {
	p := Protocol{}
	ac := reversecall.ArgumentsContext{HeadID: uuid.New()}
	msg := p.WrapConnect(ac, RegistrationRequest{ProjectionID: itemAdded})
	require.NotNil(t, msg.RegistrationRequest)
	assert.Equal(t, ac.HeadID, msg.RegistrationRequest.CallContext.HeadID)

	_, ok := p.ConnectResponse(&RuntimeMessage{Ping: &reversecall.Ping{}})
	assert.False(t, ok)
	assert.False(t, reversecall.SupportsDisconnect[ClientMessage, RuntimeMessage, RegistrationRequest, RegistrationResponse, ProjectionRequest, Response](p))
}

func TestNewProcessor(t *testing.T) {
	caller := reversecall.MethodCallerFunc(func(context.Context, string) (reversecall.RawStream, error) {
		return nil, errors.New("unused")
	})
	creator, err := reversecall.NewCreator(caller, testEC(), nil)
	require.NoError(t, err)

	p, err := NewProcessor(cartProjection(), creator, nil, nil, processing.RetryConfig{})
	require.NoError(t, err)
	assert.Equal(t, "projection/carts", p.Name())

	err = accept(p.Name())(RegistrationResponse{Failure: &reversecall.Failure{ID: uuid.New(), Reason: "duplicate"}})
	var failed *errpkg.RegistrationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "duplicate", failed.Reason)
}
