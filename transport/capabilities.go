package transport

import "fmt"

// Capabilities describes what a backend guarantees to the envelopes of a
// reverse call stream.
type Capabilities struct {
	Name string
	// Ordered is set when messages on one topic arrive in publish order. The
	// connect handshake and request/response pairing assume it.
	Ordered bool
	// InProcess backends never leave the process and need no broker.
	InProcess bool
	// MaxMessageSize is the largest envelope in bytes; zero means no limit.
	MaxMessageSize int64
}

// FitsMessage reports whether an envelope of size bytes can be sent.
func (c Capabilities) FitsMessage(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// Limitations describes, one line each, how streams over this backend differ
// from a gRPC stream.
func (c Capabilities) Limitations() []string {
	var out []string
	if !c.Ordered {
		out = append(out, "envelopes of one stream may arrive out of order")
	}
	if c.MaxMessageSize > 0 {
		out = append(out, fmt.Sprintf("envelopes over %d bytes are rejected", c.MaxMessageSize))
	}
	return out
}

const (
	oneMiB    = 1 << 20
	sqsMaxLen = 256 << 10
)

// Capabilities of the built-in backends.
var (
	ChannelCapabilities  = Capabilities{Name: "channel", Ordered: true, InProcess: true}
	KafkaCapabilities    = Capabilities{Name: "kafka", Ordered: true, MaxMessageSize: oneMiB}
	RabbitMQCapabilities = Capabilities{Name: "rabbitmq", Ordered: true}
	NATSCapabilities     = Capabilities{Name: "nats", MaxMessageSize: oneMiB}
	AWSCapabilities      = Capabilities{Name: "aws", Ordered: true, MaxMessageSize: sqsMaxLen}
	HTTPCapabilities     = Capabilities{Name: "http"}
)

// GetCapabilities returns what DefaultRegistry knows about transportName.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
