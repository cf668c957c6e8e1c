package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return newULID().String()
}

// NewHeadID returns a 128-bit identifier for a new stream head. The bytes are
// a monotonic ULID so heads opened by one process sort by creation time.
func NewHeadID() uuid.UUID {
	return uuid.UUID(newULID())
}

// NewUUID returns a random version 4 UUID.
func NewUUID() uuid.UUID {
	return uuid.New()
}
