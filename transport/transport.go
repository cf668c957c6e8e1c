// Package transport is the registry of watermill pub/sub backends that can
// carry reverse call streams to the Runtime. Each backend lives in its own
// sub-package and registers itself by name; import
// github.com/drblury/runtimeclient/transport/transports to register them all.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the subscriber, then the publisher.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	return errors.Join(errs...)
}

// Open builds the publisher and then the subscriber of backend name. The
// publisher is closed again when the subscriber cannot be built.
func Open(name string, newPublisher func() (message.Publisher, error), newSubscriber func() (message.Subscriber, error)) (Transport, error) {
	pub, err := newPublisher()
	if err != nil {
		return Transport{}, fmt.Errorf("%s publisher: %w", name, err)
	}
	sub, err := newSubscriber()
	if err != nil {
		_ = pub.Close()
		return Transport{}, fmt.Errorf("%s subscriber: %w", name, err)
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values backends read. It is satisfied by the client
// configuration so backends do not depend on it directly.
type Config interface {
	// GetRuntimeTransport returns the transport name.
	GetRuntimeTransport() string
	// GetClientID distinguishes this process on shared brokers.
	GetClientID() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
