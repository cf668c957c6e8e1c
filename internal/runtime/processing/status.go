package processing

import (
	"sync"
	"time"
)

// State is where a processor is in its register-and-handle loop.
type State string

const (
	StatePending      State = "pending"
	StateConnecting   State = "connecting"
	StateRegistered   State = "registered"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// StatusSnapshot is a point-in-time copy of a processor's status.
type StatusSnapshot struct {
	State          State         `json:"state"`
	Attempts       int           `json:"attempts"`
	Registrations  int           `json:"registrations"`
	LastError      string        `json:"last_error,omitempty"`
	LastRegistered time.Time     `json:"last_registered,omitempty"`
	NextRetryIn    time.Duration `json:"next_retry_in,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Status tracks a processor across reconnects.
type Status struct {
	mu       sync.RWMutex
	snapshot StatusSnapshot
}

func newStatus() *Status {
	return &Status{snapshot: StatusSnapshot{State: StatePending, UpdatedAt: time.Now()}}
}

func (s *Status) update(fn func(*StatusSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snapshot)
	s.snapshot.UpdatedAt = time.Now()
}

func (s *Status) connecting() {
	s.update(func(snap *StatusSnapshot) {
		snap.State = StateConnecting
		snap.Attempts++
		snap.NextRetryIn = 0
	})
}

func (s *Status) registered() {
	s.update(func(snap *StatusSnapshot) {
		snap.State = StateRegistered
		snap.Registrations++
		snap.LastRegistered = time.Now()
		snap.LastError = ""
	})
}

func (s *Status) reconnecting(err error, wait time.Duration) {
	s.update(func(snap *StatusSnapshot) {
		snap.State = StateReconnecting
		snap.NextRetryIn = wait
		if err != nil {
			snap.LastError = err.Error()
		}
	})
}

func (s *Status) finished(err error) {
	s.update(func(snap *StatusSnapshot) {
		snap.NextRetryIn = 0
		if err != nil {
			snap.State = StateFailed
			snap.LastError = err.Error()
			return
		}
		snap.State = StateStopped
	})
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}
