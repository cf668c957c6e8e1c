// Package nats provides a NATS Core transport for reverse call streams.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/runtimeclient/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS Core transport. JetStream is disabled: reply
// subjects live only as long as their stream.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := ConnectionOptions(cfg.GetClientID())

	core := nats.JetStreamConfig{Disabled: true}

	return transport.Open(TransportName,
		func() (message.Publisher, error) {
			return PublisherFactory(nats.PublisherConfig{
				URL: url, NatsOptions: options, Marshaler: marshaler, JetStream: core,
			}, logger)
		},
		func() (message.Subscriber, error) {
			return SubscriberFactory(nats.SubscriberConfig{
				URL: url, NatsOptions: options, Unmarshaler: marshaler, JetStream: core,
			}, logger)
		})
}

// ConnectionOptions names the connection after the client and keeps
// reconnecting while the server is away.
func ConnectionOptions(clientID string) []natsgo.Option {
	options := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
	}
	if clientID != "" {
		options = append(options, natsgo.Name(clientID))
	}
	return options
}
