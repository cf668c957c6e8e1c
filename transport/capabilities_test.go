package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesFitsMessage(t *testing.T) {
	assert.True(t, Capabilities{}.FitsMessage(10<<20))
	assert.True(t, AWSCapabilities.FitsMessage(256<<10))
	assert.False(t, AWSCapabilities.FitsMessage(256<<10+1))
	assert.True(t, KafkaCapabilities.FitsMessage(1<<20))
}

func TestCapabilitiesLimitations(t *testing.T) {
	assert.Empty(t, ChannelCapabilities.Limitations())
	assert.Empty(t, RabbitMQCapabilities.Limitations())
	assert.Equal(t, []string{"envelopes of one stream may arrive out of order"}, HTTPCapabilities.Limitations())
	assert.Equal(t, []string{
		"envelopes of one stream may arrive out of order",
		"envelopes over 1048576 bytes are rejected",
	}, NATSCapabilities.Limitations())
}

func TestBuiltInCapabilities(t *testing.T) {
	tests := []struct {
		caps    Capabilities
		name    string
		ordered bool
	}{
		{ChannelCapabilities, "channel", true},
		{KafkaCapabilities, "kafka", true},
		{RabbitMQCapabilities, "rabbitmq", true},
		{NATSCapabilities, "nats", false},
		{AWSCapabilities, "aws", true},
		{HTTPCapabilities, "http", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.caps.Name)
			assert.Equal(t, tt.ordered, tt.caps.Ordered)
			assert.Equal(t, tt.name == "channel", tt.caps.InProcess)
		})
	}
}
