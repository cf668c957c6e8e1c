package reversecall

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	connectResultConnected = "connected"
	connectResultFailed    = "failed"
	connectResultError     = "error"

	outcomeResponded   = "responded"
	outcomeFailed      = "failed"
	outcomePanicked    = "panicked"
	outcomeWriteFailed = "write_failed"
)

// Metrics collects reverse call statistics per stream method. A nil *Metrics
// records nothing.
type Metrics struct {
	mu sync.Mutex

	connectsTotal    *prometheus.CounterVec
	pingsTotal       *prometheus.CounterVec
	receivedTotal    *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestsInFlight *prometheus.GaugeVec
	requestDuration  *prometheus.HistogramVec
	pingTimeouts     *prometheus.CounterVec
	ignoredTotal     *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runtimeclient",
			Subsystem: "reverse_call",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors. A nil registerer uses the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:    registerer,
		connectsTotal: newCounterVec("connects_total", "Connect attempts by result", "method", "result"),
		pingsTotal:    newCounterVec("pings_total", "Pings answered with a pong", "method"),
		receivedTotal: newCounterVec("messages_received_total", "Messages received from the runtime by kind", "method", "kind"),
		requestsTotal: newCounterVec("requests_total", "Requests dispatched to handlers by outcome", "method", "outcome"),
		requestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "runtimeclient",
			Subsystem: "reverse_call",
			Name:      "requests_in_flight",
			Help:      "Requests currently being handled",
		}, []string{"method"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "runtimeclient",
			Subsystem: "reverse_call",
			Name:      "request_duration_seconds",
			Help:      "Time from receiving a request to writing its response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pingTimeouts: newCounterVec("ping_timeouts_total", "Streams ended because the keepalive deadline passed", "method"),
		ignoredTotal: newCounterVec("ignored_messages_total", "Messages ignored because their kind was unexpected", "method", "phase"),
	}
}

// Register registers the collectors. When another Metrics already registered
// the same collectors, they are adopted so both record into the exported
// series. Call it before the Metrics is used; repeated calls are no-ops.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	err := errors.Join(
		registerOrExisting(m.registerer, &m.connectsTotal),
		registerOrExisting(m.registerer, &m.pingsTotal),
		registerOrExisting(m.registerer, &m.receivedTotal),
		registerOrExisting(m.registerer, &m.requestsTotal),
		registerOrExisting(m.registerer, &m.requestsInFlight),
		registerOrExisting(m.registerer, &m.requestDuration),
		registerOrExisting(m.registerer, &m.pingTimeouts),
		registerOrExisting(m.registerer, &m.ignoredTotal),
	)
	if err != nil {
		return err
	}
	m.registered = true
	return nil
}

func registerOrExisting[T prometheus.Collector](r prometheus.Registerer, c *T) error {
	err := r.Register(*c)
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return err
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return err
	}
	*c = existing
	return nil
}

func (m *Metrics) connected(method, result string) {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues(method, result).Inc()
}

func (m *Metrics) pinged(method string) {
	if m == nil {
		return
	}
	m.pingsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) received(method string, kind Kind) {
	if m == nil {
		return
	}
	m.receivedTotal.WithLabelValues(method, kind.String()).Inc()
}

func (m *Metrics) requestStarted(method string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *Metrics) requestFinished(method, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Dec()
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) pingTimedOut(method string) {
	if m == nil {
		return
	}
	m.pingTimeouts.WithLabelValues(method).Inc()
}

func (m *Metrics) ignored(method string, ph phase) {
	if m == nil {
		return
	}
	m.ignoredTotal.WithLabelValues(method, ph.String()).Inc()
}
