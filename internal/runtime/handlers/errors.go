package handlers

import "fmt"

// UnprocessableEventError reports event content that cannot be decoded or
// does not validate. Retrying such an event does not help.
type UnprocessableEventError struct {
	Content string
	Err     error
}

func (e *UnprocessableEventError) Error() string {
	return fmt.Sprintf("unprocessable event content: %v", e.Err)
}

func (e *UnprocessableEventError) Unwrap() error { return e.Err }

func unprocessable(content []byte, err error) error {
	return &UnprocessableEventError{Content: string(content), Err: err}
}
