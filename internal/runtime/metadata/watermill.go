package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// NewMessage builds a watermill message with a fresh ULID carrying payload
// and the headers in m.
func (m Metadata) NewMessage(payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewULID(), payload)
	maps.Copy(msg.Metadata, m)
	return msg
}

// FromMessage copies the headers of msg.
func FromMessage(msg *message.Message) Metadata {
	if msg == nil {
		return Metadata{}
	}
	md := make(Metadata, len(msg.Metadata))
	maps.Copy(md, msg.Metadata)
	return md
}
