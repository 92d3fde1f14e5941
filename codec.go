package phoenixchan

import (
	"encoding/json"
)

// frameArity is the element count of every channel frame in both
// directions. The count and order are a wire-compatibility contract.
const frameArity = 5

// EncodeMessage encodes a message into its canonical wire form: a UTF-8
// JSON array of exactly five elements,
//
//	[join_ref, ref, topic, event, payload]
//
// References serialize as decimal strings or null, never as JSON numbers.
func EncodeMessage(m *Message) ([]byte, error) {
	frame := [frameArity]any{m.JoinRef, m.Ref, m.Topic, m.Event, m.Payload}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, NewSerializeError(err)
	}

	return data, nil
}

// DecodeMessage decodes the canonical five-element wire form back into a
// message. Arrays of any other length are rejected outright, never padded
// or truncated. The payload decodes as a generic JSON value; use
// DecodePayload to narrow it.
func DecodeMessage(data []byte) (*Message, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, NewDeserializeError(err)
	}

	if len(frame) != frameArity {
		return nil, NewArityError(len(frame))
	}

	var m Message
	for i, dst := range []any{&m.JoinRef, &m.Ref, &m.Topic, &m.Event, &m.Payload} {
		if err := json.Unmarshal(frame[i], dst); err != nil {
			return nil, NewDeserializeError(err)
		}
	}

	return &m, nil
}
