package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/ids"
	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	"github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/metadata"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
	backends "github.com/drblury/runtimeclient/transport"
)

var (
	errSendClosed      = errors.New("runtimeclient: send on a stream after CloseSend")
	errMessageTooLarge = errors.New("runtimeclient: envelope exceeds the transport message size limit")
)

// PubSubOptions configures a PubSubCaller.
type PubSubOptions struct {
	// ClientID is added to stream headers so the Runtime can tell clients apart.
	ClientID string
	Logger   logging.ServiceLogger
	// Capabilities of the backend; a message size limit is enforced on send.
	Capabilities backends.Capabilities
	// MetricsRegisterer, when set, decorates the publisher and subscriber
	// with watermill's Prometheus metrics.
	MetricsRegisterer prometheus.Registerer
}

// PubSubCaller carries reverse call streams over a watermill publisher and
// subscriber. Client envelopes are published to the method topic; each
// stream reads replies from its own reply topic, subscribed before the
// first envelope is sent.
type PubSubCaller struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	opts       PubSubOptions
	log        logging.ServiceLogger
}

// NewPubSubCaller wraps t. The caller owns t and closes it on Close.
func NewPubSubCaller(t backends.Transport, opts PubSubOptions) (*PubSubCaller, error) {
	if t.Publisher == nil || t.Subscriber == nil {
		return nil, fmt.Errorf("%w: pub/sub transport needs a publisher and a subscriber", errpkg.ErrCallerRequired)
	}
	publisher, subscriber := t.Publisher, t.Subscriber
	if opts.MetricsRegisterer != nil {
		builder := metrics.NewPrometheusMetricsBuilder(opts.MetricsRegisterer, "runtimeclient", "pubsub")
		var err error
		if publisher, err = builder.DecoratePublisher(publisher); err != nil {
			return nil, fmt.Errorf("decorate publisher: %w", err)
		}
		if subscriber, err = builder.DecorateSubscriber(subscriber); err != nil {
			return nil, fmt.Errorf("decorate subscriber: %w", err)
		}
	}
	return &PubSubCaller{
		publisher:  publisher,
		subscriber: subscriber,
		opts:       opts,
		log:        logging.OrNop(opts.Logger).With(logging.LogFields{"transport": opts.Capabilities.Name}),
	}, nil
}

var _ reversecall.MethodCaller = (*PubSubCaller)(nil)

// MethodTopic turns a method name into a topic name every backend accepts:
// "/pkg.Service/Connect" becomes "pkg-service-connect".
func MethodTopic(method string) string {
	topic := strings.ToLower(strings.Trim(method, "/"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, topic)
}

// ReplyTopic is the topic a stream reads the Runtime's envelopes from.
func ReplyTopic(method, streamID string) string {
	return MethodTopic(method) + "-" + strings.ToLower(streamID)
}

// Call subscribes to a fresh reply topic and returns the stream.
func (c *PubSubCaller) Call(ctx context.Context, method string) (reversecall.RawStream, error) {
	streamID := ids.CreateULID()
	reply := ReplyTopic(method, streamID)

	streamCtx, cancel := context.WithCancel(ctx)
	messages, err := c.subscriber.Subscribe(streamCtx, reply)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errpkg.CouldNotConnectError{Target: reply, Err: err}
	}

	headers := metadata.ForStream(streamID, reply, method, c.opts.ClientID)
	c.log.Debug("Opened pub/sub stream", logging.LogFields{"stream_id": streamID, "method": method})

	return &pubSubStream{
		ctx:       streamCtx,
		cancel:    cancel,
		publisher: c.publisher,
		topic:     MethodTopic(method),
		headers:   headers,
		messages:  messages,
		caps:      c.opts.Capabilities,
	}, nil
}

// Close closes the subscriber and the publisher.
func (c *PubSubCaller) Close() error {
	return backends.Transport{Publisher: c.publisher, Subscriber: c.subscriber}.Close()
}

type pubSubStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	publisher message.Publisher
	topic     string
	headers   metadata.Metadata
	messages  <-chan *message.Message
	caps      backends.Capabilities

	mu         sync.Mutex
	sendClosed bool
	ended      bool
}

func (s *pubSubStream) SendMsg(m any) error {
	data, err := jsoncodec.Marshal(m)
	if err != nil {
		return err
	}
	if !s.caps.FitsMessage(len(data)) {
		return fmt.Errorf("%w: %d bytes", errMessageTooLarge, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return errSendClosed
	}
	return s.publish(data, s.headers.Envelope())
}

// CloseSend publishes the end-of-stream marker.
func (s *pubSubStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.publish(nil, s.headers.EndOfStream())
}

func (s *pubSubStream) publish(payload []byte, headers metadata.Metadata) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	msg := headers.NewMessage(payload)
	msg.SetContext(s.ctx)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// RecvMsg reads the next envelope. The Runtime ends the stream with an
// end-of-stream marker; every received message is acked.
func (s *pubSubStream) RecvMsg(m any) error {
	if s.isEnded() {
		return io.EOF
	}
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case msg, ok := <-s.messages:
		if !ok {
			if err := s.ctx.Err(); err != nil {
				return err
			}
			s.end()
			return io.EOF
		}
		defer msg.Ack()
		if metadata.FromMessage(msg).IsEndOfStream() {
			s.end()
			return io.EOF
		}
		return jsoncodec.Unmarshal(msg.Payload, m)
	}
}

func (s *pubSubStream) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// end marks the stream finished and releases the reply subscription.
func (s *pubSubStream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.cancel()
}
