package handlers

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/runtimeclient/internal/runtime/errors"
)

// ProtoValidator validates decoded protobuf content, for example with
// protovalidate.
type ProtoValidator interface {
	Validate(msg proto.Message) error
}

// ProtoValidatorFunc adapts a function to ProtoValidator.
type ProtoValidatorFunc func(proto.Message) error

func (f ProtoValidatorFunc) Validate(msg proto.Message) error { return f(msg) }

var protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeProto decodes protojson event content into a new T and validates it
// when validator is set. Failures are *UnprocessableEventError.
func DecodeProto[T proto.Message](content []byte, validator ProtoValidator) (T, error) {
	var zero T
	prototype, err := EnsureProtoPrototype(zero)
	if err != nil {
		return zero, err
	}
	typed, err := clonePrototype(prototype)
	if err != nil {
		return zero, err
	}

	if err := protoUnmarshal.Unmarshal(content, typed); err != nil {
		return zero, unprocessable(content, fmt.Errorf("decode %T: %w", typed, err))
	}
	if validator != nil {
		if err := validator.Validate(typed); err != nil {
			return zero, unprocessable(content, err)
		}
	}
	return typed, nil
}

// EncodeProto encodes msg as protojson.
func EncodeProto(msg proto.Message) ([]byte, error) {
	if isNilProto(msg) {
		return nil, errspkg.ErrContentTypeRequired
	}
	return protojson.Marshal(msg)
}

func clonePrototype[T proto.Message](prototype T) (T, error) {
	if isNilProto(prototype) {
		var zero T
		return zero, errspkg.ErrContentTypeRequired
	}

	cloned := proto.Clone(prototype)
	proto.Reset(cloned)

	typed, ok := cloned.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected prototype type %T", cloned)
	}
	return typed, nil
}

// EnsureProtoPrototype returns candidate, or a fresh instance of its type
// when candidate is a nil pointer.
func EnsureProtoPrototype[T proto.Message](candidate T) (T, error) {
	if !isNilProto(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Interface {
		return zero, errspkg.ErrContentTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrContentPointerNeeded
	}

	typed, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
