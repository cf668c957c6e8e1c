package eventhandlers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

var (
	orderPlacedType = uuid.MustParse("6a1c2a55-6b0e-4a3e-9f66-8a5b0b1e7c01")
	unknownType     = uuid.MustParse("0e0b7c84-32a9-44f4-9d1c-3f5d9d1b2c02")
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

func testEC() ecpkg.ExecutionContext {
	return ecpkg.New(uuid.New(), ecpkg.NotSet, "Test")
}

func requestFor(typ uuid.UUID, content string) HandleEventRequest {
	return HandleEventRequest{
		CallContext: reversecall.RequestCallContext{CallID: uuid.New(), ExecutionContext: testEC()},
		Event: events.StreamEvent{Event: events.CommittedEvent{
			EventLogSequenceNumber: 3,
			EventSourceID:          "order-1",
			Type:                   events.NewEventType(typ),
			Content:                []byte(content),
		}},
	}
}

func TestValidate(t *testing.T) {
	noop := func(context.Context, []byte, events.Context) error { return nil }

	assert.ErrorIs(t, EventHandler{Handlers: map[uuid.UUID]HandleFunc{orderPlacedType: noop}}.Validate(), errpkg.ErrProcessorIDRequired)
	assert.ErrorIs(t, EventHandler{ID: uuid.New()}.Validate(), errpkg.ErrHandlerRequired)
	assert.ErrorIs(t, EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{orderPlacedType: nil}}.Validate(), errpkg.ErrHandlerRequired)
	assert.Error(t, EventHandler{ID: uuid.New(), Concurrency: -1, Handlers: map[uuid.UUID]HandleFunc{orderPlacedType: noop}}.Validate())
	assert.NoError(t, EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{orderPlacedType: noop}}.Validate())
}

func TestEventTypesAreSorted(t *testing.T) {
	noop := func(context.Context, []byte, events.Context) error { return nil }
	h := EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{orderPlacedType: noop, unknownType: noop}}
	types := h.EventTypes()
	require.Len(t, types, 2)
	assert.Equal(t, unknownType, types[0].ID)
	assert.Equal(t, uint32(1), types[1].Generation)
}

func TestHandleDecodesAndCallsHandler(t *testing.T) {
	var got orderPlaced
	var seen events.Context
	h := EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{
		orderPlacedType: On(func(_ context.Context, evt orderPlaced, ectx events.Context) error {
			got, seen = evt, ectx
			return nil
		}),
	}}
	req := requestFor(orderPlacedType, `{"orderId":"o-1"}`)
	ec := testEC().ForTenant(uuid.New())

	resp, err := handle(h, "event-handler/test", nil)(context.Background(), req, ec, tenancy.Services{})
	require.NoError(t, err)
	assert.Nil(t, resp.Failure)
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, uint64(3), seen.SequenceNumber)
	assert.Equal(t, ec.TenantID, seen.ExecutionContext.TenantID)
}

func TestHandleFailures(t *testing.T) {
	h := EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{
		orderPlacedType: On(func(_ context.Context, evt orderPlaced, _ events.Context) error {
			if evt.OrderID == "" {
				return errors.New("order id missing")
			}
			return nil
		}),
	}}
	fn := handle(h, "event-handler/test", nil)

	tests := []struct {
		name      string
		req       HandleEventRequest
		wantRetry bool
	}{
		{"handler error is retried", requestFor(orderPlacedType, `{}`), true},
		{"bad content is not retried", requestFor(orderPlacedType, `{bad`), false},
		{"unknown event type is not retried", requestFor(unknownType, `{}`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := fn(context.Background(), tt.req, testEC(), tenancy.Services{})
			require.NoError(t, err)
			require.NotNil(t, resp.Failure)
			assert.NotEmpty(t, resp.Failure.Reason)
			assert.Equal(t, tt.wantRetry, resp.Failure.Retry)
		})
	}
}

func TestHandleRunsMiddleware(t *testing.T) {
	var inv processing.Invocation
	chain := processing.Chain(func(ctx context.Context, i processing.Invocation, next processing.Next) error {
		inv = i
		return next(ctx)
	}, processing.RecovererMiddleware())
	h := EventHandler{ID: uuid.New(), Handlers: map[uuid.UUID]HandleFunc{
		orderPlacedType: func(context.Context, []byte, events.Context) error { panic("boom") },
	}}
	req := requestFor(orderPlacedType, `{}`)

	resp, err := handle(h, "event-handler/test", chain)(context.Background(), req, testEC(), tenancy.Services{})
	require.NoError(t, err)
	require.NotNil(t, resp.Failure)
	assert.True(t, resp.Failure.Retry)
	assert.Equal(t, req.CallContext.CallID, inv.CallID)
	assert.Equal(t, orderPlacedType.String(), inv.Label)
	assert.Equal(t, Kind, inv.Kind)
}

func TestAcceptRegistrationFailure(t *testing.T) {
	assert.NoError(t, accept("event-handler/x")(RegistrationResponse{}))

	err := accept("event-handler/x")(RegistrationResponse{Failure: &reversecall.Failure{ID: uuid.New(), Reason: "already registered"}})
	var failed *errpkg.RegistrationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "already registered", failed.Reason)
	assert.Equal(t, "event-handler/x", failed.Processor)
}

// jsonStream moves messages through the JSON codec like the transports do.
type jsonStream struct {
	ctx context.Context
	in  chan []byte
	out chan []byte
}

func (s *jsonStream) SendMsg(m any) error {
	raw, err := jsoncodec.Marshal(m)
	if err != nil {
		return err
	}
	s.out <- raw
	return nil
}

func (s *jsonStream) RecvMsg(m any) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case raw, ok := <-s.in:
		if !ok {
			return io.EOF
		}
		return jsoncodec.Unmarshal(raw, m)
	}
}

func (s *jsonStream) CloseSend() error { return nil }

func TestProcessorOverTheWire(t *testing.T) {
	stream := &jsonStream{in: make(chan []byte, 8), out: make(chan []byte, 8)}
	caller := reversecall.MethodCallerFunc(func(ctx context.Context, method string) (reversecall.RawStream, error) {
		assert.Equal(t, Method, method)
		stream.ctx = ctx
		return stream, nil
	})
	creator, err := reversecall.NewCreator(caller, testEC(), nil)
	require.NoError(t, err)

	handled := make(chan string, 1)
	h := EventHandler{ID: uuid.New(), Alias: "orders", Partitioned: true, Handlers: map[uuid.UUID]HandleFunc{
		orderPlacedType: On(func(_ context.Context, evt *orderPlaced, _ events.Context) error {
			handled <- evt.OrderID
			return nil
		}),
	}}
	p, err := NewProcessor(h, creator, nil, nil, processing.RetryConfig{})
	require.NoError(t, err)
	assert.Equal(t, "event-handler/orders", p.Name())

	callID := uuid.New()
	stream.in <- []byte(`{"registrationResponse":{}}`)
	stream.in <- []byte(`{"handleRequest":{"callContext":{"callId":"` + callID.String() + `","executionContext":{}},"event":{"event":{"eventLogSequenceNumber":1,"eventSourceId":"o-1","type":{"id":"` + orderPlacedType.String() + `","generation":1},"content":{"orderId":"o-1"},"public":false},"partitioned":true,"partitionId":"o-1"}}}`)

	done := make(chan error, 1)
	go func() { done <- p.RunOnce(context.Background()) }()

	var registration ClientMessage
	require.NoError(t, jsoncodec.Unmarshal(<-stream.out, &registration))
	require.NotNil(t, registration.RegistrationRequest)
	assert.Equal(t, h.ID, registration.RegistrationRequest.EventHandlerID)
	assert.Equal(t, "orders", registration.RegistrationRequest.Alias)
	assert.True(t, registration.RegistrationRequest.Partitioned)
	assert.NotEqual(t, uuid.Nil, registration.RegistrationRequest.CallContext.HeadID)

	select {
	case id := <-handled:
		assert.Equal(t, "o-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not handled")
	}

	var result ClientMessage
	require.NoError(t, jsoncodec.Unmarshal(<-stream.out, &result))
	require.NotNil(t, result.HandleResult)
	assert.Equal(t, callID, result.HandleResult.CallContext.CallID)
	assert.Nil(t, result.HandleResult.Failure)

	close(stream.in)
	assert.NoError(t, <-done)
}
