package runtimeclient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

type orderTotals struct {
	Count int `json:"count"`
}

func TestRegisterExportsRequireClient(t *testing.T) {
	assert.ErrorIs(t, RegisterEventHandler(nil, EventHandler{}), ErrClientRequired)
	assert.ErrorIs(t, RegisterFilter(nil, Filter{}), ErrClientRequired)
	assert.ErrorIs(t, RegisterProjection(nil, Projection{}), ErrClientRequired)
}

func TestTryNewClientExportValidates(t *testing.T) {
	_, err := TryNewClient(nil, NewNopLogger(), context.Background(), ClientDependencies{})
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = TryNewClient(&Config{}, nil, context.Background(), ClientDependencies{})
	assert.ErrorIs(t, err, ErrLoggerRequired)
}

func TestOnDecodesJSON(t *testing.T) {
	var got orderPlaced
	handle := On(func(_ context.Context, event orderPlaced, _ EventContext) error {
		got = event
		return nil
	})
	require.NoError(t, handle(context.Background(), []byte(`{"orderId":"o-1"}`), EventContext{}))
	assert.Equal(t, "o-1", got.OrderID)

	err := handle(context.Background(), []byte(`{`), EventContext{})
	var unprocessable *UnprocessableEventError
	assert.True(t, errors.As(err, &unprocessable))
}

func TestOnProtoDecodesAndValidates(t *testing.T) {
	rejected := errors.New("rejected")
	handle := OnProto(func(_ context.Context, event *structpb.Struct, _ EventContext) error {
		return nil
	}, ProtoValidatorFunc(func(proto.Message) error { return rejected }))

	assert.ErrorIs(t, handle(context.Background(), []byte(`{"orderId":"o-1"}`), EventContext{}), rejected)
}

func TestOnJSONFoldsState(t *testing.T) {
	project := OnJSON(func(_ context.Context, state orderTotals, _ orderPlaced, _ ProjectionContext) (orderTotals, error) {
		state.Count++
		return state, nil
	})
	result, err := project(context.Background(), `{"count":1}`, []byte(`{"orderId":"o-2"}`), ProjectionContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, result.State)

	remove := OnJSON(func(context.Context, orderTotals, orderPlaced, ProjectionContext) (orderTotals, error) {
		return orderTotals{}, ErrDeleteReadModel
	})
	result, err = remove(context.Background(), `{}`, []byte(`{}`), ProjectionContext{})
	require.NoError(t, err)
	assert.True(t, result.Delete)
}

func TestResolveExport(t *testing.T) {
	providers := SharedServices(Services{"greeting": "hello"})
	greeting, err := Resolve[string](providers.ForTenant(uuid.New()), "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", greeting)
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	_, err := Marshal(payload)
	require.NoError(t, err)
	_, err = MarshalIndent(payload, "", "  ")
	require.NoError(t, err)
	require.NoError(t, Unmarshal([]byte(`{"hello":"world"}`), &payload))
}

func TestErrorCategoryConstants(t *testing.T) {
	assert.Equal(t, ErrorCategory("none"), ErrorCategoryNone)
	assert.Equal(t, ErrorCategory("validation"), ErrorCategoryValidation)
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
