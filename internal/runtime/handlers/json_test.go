package handlers

import (
	"errors"
	"testing"

	errspkg "github.com/drblury/runtimeclient/internal/runtime/errors"
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
}

func TestDecodeJSONPointer(t *testing.T) {
	got, err := DecodeJSON[*orderPlaced]([]byte(`{"orderId":"o-1","amount":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.OrderID != "o-1" || got.Amount != 3 {
		t.Fatalf("unexpected value %#v", got)
	}
}

func TestDecodeJSONValue(t *testing.T) {
	got, err := DecodeJSON[orderPlaced]([]byte(`{"orderId":"o-2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderID != "o-2" {
		t.Fatalf("unexpected value %#v", got)
	}
}

func TestDecodeJSONDistinctInstances(t *testing.T) {
	first, _ := DecodeJSON[*orderPlaced]([]byte(`{}`))
	second, _ := DecodeJSON[*orderPlaced]([]byte(`{}`))
	if first == second {
		t.Fatal("expected distinct instances")
	}
}

func TestDecodeJSONInvalidContent(t *testing.T) {
	_, err := DecodeJSON[*orderPlaced]([]byte(`{invalid`))
	var unprocessable *UnprocessableEventError
	if !errors.As(err, &unprocessable) {
		t.Fatalf("expected UnprocessableEventError, got %v", err)
	}
	if unprocessable.Content != `{invalid` {
		t.Fatalf("content not kept: %q", unprocessable.Content)
	}
}

func TestDecodeJSONInterfaceType(t *testing.T) {
	if _, err := DecodeJSON[any]([]byte(`{}`)); !errors.Is(err, errspkg.ErrContentTypeRequired) {
		t.Fatalf("expected content type required error, got %v", err)
	}
}

func TestEncodeJSON(t *testing.T) {
	raw, err := EncodeJSON(orderPlaced{OrderID: "o-1", Amount: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"orderId":"o-1","amount":1}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	if _, err := EncodeJSON(nil); !errors.Is(err, errspkg.ErrContentTypeRequired) {
		t.Fatalf("expected error for nil, got %v", err)
	}
}
