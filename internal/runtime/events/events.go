// Package events holds the event shapes the Runtime hands to processors.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
)

// EventType identifies the schema of an event's content.
type EventType struct {
	ID         uuid.UUID `json:"id"`
	Generation uint32    `json:"generation"`
}

// NewEventType returns the first generation of id.
func NewEventType(id uuid.UUID) EventType {
	return EventType{ID: id, Generation: 1}
}

func (t EventType) String() string {
	return fmt.Sprintf("%s/%d", t.ID, t.Generation)
}

// CommittedEvent is an event as stored in the event log.
type CommittedEvent struct {
	EventLogSequenceNumber uint64                 `json:"eventLogSequenceNumber"`
	Occurred               time.Time              `json:"occurred"`
	EventSourceID          string                 `json:"eventSourceId"`
	ExecutionContext       ecpkg.ExecutionContext `json:"executionContext"`
	Type                   EventType              `json:"type"`
	Content                json.RawMessage        `json:"content"`
	Public                 bool                   `json:"public"`
}

// StreamEvent is a committed event as it appears in a stream.
type StreamEvent struct {
	Event       CommittedEvent `json:"event"`
	PartitionID string         `json:"partitionId,omitempty"`
	Partitioned bool           `json:"partitioned"`
	ScopeID     uuid.UUID      `json:"scopeId"`
}

// RetryProcessingState is sent with a request the Runtime retries after an
// earlier failure.
type RetryProcessingState struct {
	FailureReason string `json:"failureReason"`
	RetryCount    uint32 `json:"retryCount"`
}

// ProcessorFailure is returned to the Runtime instead of a result when user
// code failed.
type ProcessorFailure struct {
	Reason       string        `json:"reason"`
	Retry        bool          `json:"retry"`
	RetryTimeout time.Duration `json:"retryTimeout,omitempty"`
}

const (
	retryStep    = 5 * time.Second
	maxRetryWait = time.Minute
)

// RetryTimeout is how long the Runtime should wait before retrying a
// failure. It grows with every retry and is capped at one minute.
func RetryTimeout(state *RetryProcessingState) time.Duration {
	if state == nil {
		return retryStep
	}
	wait := time.Duration(state.RetryCount+1) * retryStep
	if wait > maxRetryWait || wait <= 0 {
		return maxRetryWait
	}
	return wait
}

// Context is what processor callbacks get besides the event content.
type Context struct {
	SequenceNumber   uint64
	EventSourceID    string
	Occurred         time.Time
	Type             EventType
	Public           bool
	PartitionID      string
	ScopeID          uuid.UUID
	ExecutionContext ecpkg.ExecutionContext
	Services         tenancy.ServiceProvider
	// Retry is set when the Runtime is retrying this event.
	Retry *RetryProcessingState
}

// NewContext builds the callback context for a stream event.
func NewContext(se StreamEvent, ec ecpkg.ExecutionContext, services tenancy.ServiceProvider, retry *RetryProcessingState) Context {
	return Context{
		SequenceNumber:   se.Event.EventLogSequenceNumber,
		EventSourceID:    se.Event.EventSourceID,
		Occurred:         se.Event.Occurred,
		Type:             se.Event.Type,
		Public:           se.Event.Public,
		PartitionID:      se.PartitionID,
		ScopeID:          se.ScopeID,
		ExecutionContext: ec,
		Services:         services,
		Retry:            retry,
	}
}

// Failure builds the ProcessorFailure for err. Retry is false when retrying
// cannot help, as for content that does not decode.
func Failure(err error, retry bool, state *RetryProcessingState) *ProcessorFailure {
	if err == nil {
		return nil
	}
	f := &ProcessorFailure{Reason: err.Error(), Retry: retry}
	if retry {
		f.RetryTimeout = RetryTimeout(state)
	}
	return f
}
