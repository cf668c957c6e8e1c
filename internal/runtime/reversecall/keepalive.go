package reversecall

import (
	"sync/atomic"
	"time"
)

const (
	keepaliveActive int32 = iota
	keepaliveStopped
	keepaliveFired
)

// keepalive fires expire once when reset has not been called for timeout.
// A nil keepalive is disabled. Stopping and firing are mutually exclusive.
type keepalive struct {
	timeout time.Duration
	timer   *time.Timer
	state   atomic.Int32
}

func startKeepalive(timeout time.Duration, expire func()) *keepalive {
	if timeout <= 0 {
		return nil
	}
	k := &keepalive{timeout: timeout}
	k.timer = time.AfterFunc(timeout, func() {
		if k.state.CompareAndSwap(keepaliveActive, keepaliveFired) {
			expire()
		}
	})
	return k
}

func (k *keepalive) reset() {
	if k == nil || k.state.Load() != keepaliveActive {
		return
	}
	k.timer.Reset(k.timeout)
}

// stop disarms the keepalive and reports whether it did so before expiry.
func (k *keepalive) stop() bool {
	if k == nil {
		return true
	}
	k.timer.Stop()
	if k.state.CompareAndSwap(keepaliveActive, keepaliveStopped) {
		return true
	}
	return k.state.Load() == keepaliveStopped
}

func (k *keepalive) expired() bool {
	return k != nil && k.state.Load() == keepaliveFired
}
