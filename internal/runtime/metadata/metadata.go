// Package metadata holds the headers that tie pub/sub messages to a reverse
// call stream.
package metadata

import "maps"

// Header keys.
const (
	KeyStreamID    = "runtimeclient_stream_id"
	KeyReplyTopic  = "runtimeclient_reply_topic"
	KeyMethod      = "runtimeclient_method"
	KeyEndOfStream = "runtimeclient_end_of_stream"
	KeyMessageKind = "runtimeclient_message_kind"
	KeyClientID    = "runtimeclient_client_id"
)

// Values of KeyMessageKind.
const (
	KindEnvelope    = "envelope"
	KindEndOfStream = "end_of_stream"
)

// Metadata are the headers of one pub/sub message.
type Metadata map[string]string

// ForStream returns the headers identifying one stream. An empty clientID is
// left out.
func ForStream(streamID, replyTopic, method, clientID string) Metadata {
	md := Metadata{
		KeyStreamID:   streamID,
		KeyReplyTopic: replyTopic,
		KeyMethod:     method,
	}
	if clientID != "" {
		md[KeyClientID] = clientID
	}
	return md
}

func (m Metadata) StreamID() string   { return m[KeyStreamID] }
func (m Metadata) ReplyTopic() string { return m[KeyReplyTopic] }
func (m Metadata) Method() string     { return m[KeyMethod] }
func (m Metadata) ClientID() string   { return m[KeyClientID] }
func (m Metadata) Kind() string       { return m[KeyMessageKind] }

// IsEndOfStream reports whether the message closes its stream. Either the
// flag or the kind marks it.
func (m Metadata) IsEndOfStream() bool {
	return m[KeyEndOfStream] == "true" || m.Kind() == KindEndOfStream
}

// Envelope returns a copy of m for a message carrying an envelope.
func (m Metadata) Envelope() Metadata {
	return m.withKind(KindEnvelope)
}

// EndOfStream returns a copy of m for the final message of a stream.
func (m Metadata) EndOfStream() Metadata {
	md := m.withKind(KindEndOfStream)
	md[KeyEndOfStream] = "true"
	return md
}

func (m Metadata) withKind(kind string) Metadata {
	md := make(Metadata, len(m)+2)
	maps.Copy(md, m)
	md[KeyMessageKind] = kind
	return md
}
