package reversecall

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RawStream is an untyped duplex stream. grpc.ClientStream satisfies it.
type RawStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
	CloseSend() error
}

// MethodCaller opens a duplex stream to the Runtime for a method. The stream
// lives until ctx is cancelled or either side ends it. Implementations return
// an error matching errors.ErrCouldNotConnect when the Runtime is unreachable.
type MethodCaller interface {
	Call(ctx context.Context, method string) (RawStream, error)
}

// MethodCallerFunc adapts a function to MethodCaller.
type MethodCallerFunc func(ctx context.Context, method string) (RawStream, error)

func (f MethodCallerFunc) Call(ctx context.Context, method string) (RawStream, error) {
	return f(ctx, method)
}

// Stream is a typed view of a RawStream.
type Stream[C, S any] interface {
	Send(*C) error
	Recv() (*S, error)
	CloseSend() error
}

type typedStream[C, S any] struct {
	raw RawStream
}

func (t *typedStream[C, S]) Send(m *C) error { return t.raw.SendMsg(m) }

func (t *typedStream[C, S]) Recv() (*S, error) {
	m := new(S)
	if err := t.raw.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *typedStream[C, S]) CloseSend() error { return t.raw.CloseSend() }

// Open calls method on caller and returns the typed stream.
func Open[C, S any](ctx context.Context, caller MethodCaller, method string) (Stream[C, S], error) {
	raw, err := caller.Call(ctx, method)
	if err != nil {
		return nil, err
	}
	return &typedStream[C, S]{raw: raw}, nil
}

// isCancellation reports whether a stream error means the call was cancelled,
// by either side.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return false
}
