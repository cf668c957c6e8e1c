// Package transporttest provides doubles for testing transport backends
// without a broker.
package transporttest

import (
	"context"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/runtimeclient/transport"
)

// Config is a transport.Config with every value set directly.
type Config struct {
	Transport          string
	ClientID           string
	KafkaBrokers       []string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

var _ transport.Config = (*Config)(nil)

func (c *Config) GetRuntimeTransport() string   { return c.Transport }
func (c *Config) GetClientID() string           { return c.ClientID }
func (c *Config) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string        { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string            { return c.NATSURL }
func (c *Config) GetHTTPServerAddress() string  { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string   { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string          { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string        { return c.AWSEndpoint }

// Publisher drops every message and records Close.
type Publisher struct {
	closed atomic.Bool
}

func (p *Publisher) Publish(string, ...*message.Message) error { return nil }

func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *Publisher) Closed() bool { return p.closed.Load() }

// Subscriber hands out channels that never deliver.
type Subscriber struct {
	closed atomic.Bool
}

func (s *Subscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (s *Subscriber) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Subscriber) Closed() bool { return s.closed.Load() }
