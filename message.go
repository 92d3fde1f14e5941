package phoenixchan

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire literals fixed by the Phoenix channel protocol.
const (
	// EventJoin is the event sent to join a topic.
	EventJoin = "phx_join"

	// EventLeave is the event sent to leave a topic.
	EventLeave = "phx_leave"

	// EventReply is the event used by the server to answer a client message.
	EventReply = "phx_reply"

	// EventHeartbeat is the liveness probe event.
	EventHeartbeat = "heartbeat"

	// TopicPhoenix is the control topic heartbeats are sent on.
	TopicPhoenix = "phoenix"
)

// Message is a single message sent to or received from a Phoenix channel.
//
// On the wire it is a five-element JSON array:
//
//	[join_ref, ref, topic, event, payload]
//
// References are decimal strings chosen by the client; the server echoes
// Ref in its reply so the client knows which message the reply is for.
// JoinRef is set only on phx_join frames and identifies the join a push
// message belongs to. A nil reference is null on the wire.
type Message struct {
	// JoinRef correlates server push messages with the join that opened
	// the topic. Present only on join frames.
	JoinRef *string

	// Ref is the client-chosen reference echoed by the server in replies.
	Ref *string

	// Topic names the channel this message belongs to. A client must join
	// a topic before sending on it.
	Topic string

	// Event names the channel event.
	Event string

	// Payload is arbitrary structured data. It passes through JSON as-is,
	// never flattened to a string.
	Payload any
}

// IsReply reports whether the message is a server reply to the message
// with the given reference.
func (m *Message) IsReply(ref string) bool {
	return m.Event == EventReply && m.Ref != nil && *m.Ref == ref
}

// String renders the message in its wire shape with the payload elided,
// keeping caller data out of logs and error text.
func (m *Message) String() string {
	return fmt.Sprintf("[%s, %s, %s, %s, <payload>]",
		refString(m.JoinRef), refString(m.Ref),
		strconv.Quote(m.Topic), strconv.Quote(m.Event))
}

func refString(ref *string) string {
	if ref == nil {
		return "null"
	}
	return strconv.Quote(*ref)
}

// DecodePayload re-deserializes a received message payload into a concrete
// type. Received payloads decode as generic JSON values; this lets callers
// match on Topic and Event first and then pick the payload type.
func DecodePayload[T any](m *Message) (T, error) {
	var out T

	data, err := json.Marshal(m.Payload)
	if err != nil {
		return out, NewSerializeError(err)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, NewDeserializeError(err)
	}

	return out, nil
}
