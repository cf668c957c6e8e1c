package handlers

import (
	"reflect"

	errspkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
)

// DecodeJSON decodes event content into T. T may be a struct or a pointer
// to one. Decode failures are *UnprocessableEventError.
func DecodeJSON[T any](content []byte) (T, error) {
	factory, err := jsonPrototypeFactory[T]()
	if err != nil {
		var zero T
		return zero, err
	}
	typed := factory()

	target := any(&typed)
	if reflect.TypeFor[T]().Kind() == reflect.Ptr {
		target = any(typed)
	}
	if err := jsoncodec.Unmarshal(content, target); err != nil {
		var zero T
		return zero, unprocessable(content, err)
	}
	return typed, nil
}

// EncodeJSON encodes v for the Runtime.
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, errspkg.ErrContentTypeRequired
	}
	return jsoncodec.Marshal(v)
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Interface {
		return nil, errspkg.ErrContentTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return func() T {
			var zero T
			return zero
		}, nil
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}
