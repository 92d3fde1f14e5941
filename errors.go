package phoenixchan

import (
	"errors"
	"fmt"
)

// Sentinel errors - check with errors.Is().
var (
	// ErrInvalidURI is returned when the endpoint URI cannot be parsed or
	// rebuilt with the protocol version marker.
	ErrInvalidURI = errors.New("invalid endpoint URI")

	// ErrConnectFailed is returned when the websocket handshake fails.
	ErrConnectFailed = errors.New("couldn't connect to the web-socket")

	// ErrSerialize is returned when a message cannot be encoded.
	ErrSerialize = errors.New("couldn't serialize the message")

	// ErrDeserialize is returned when an inbound frame cannot be decoded.
	ErrDeserialize = errors.New("couldn't deserialize the message")

	// ErrSendFailed is returned when a transport write fails.
	ErrSendFailed = errors.New("couldn't send the message")

	// ErrRecvFailed is returned when a transport read fails.
	ErrRecvFailed = errors.New("couldn't receive the next message")

	// ErrMessageType is returned when an inbound frame is not a text frame.
	ErrMessageType = errors.New("unexpected message type")

	// ErrDisconnected is returned when the stream ends while awaiting the
	// next frame.
	ErrDisconnected = errors.New("disconnected")

	// ErrClientClosed is returned for operations on a closed client.
	ErrClientClosed = errors.New("client closed")
)

// ConnectError reports a failed handshake. Extract with errors.As().
type ConnectError struct {
	err error

	// Cause is the underlying transport error.
	Cause error
}

func (e *ConnectError) Error() string {
	return e.err.Error() + ": " + e.Cause.Error()
}

func (e *ConnectError) Unwrap() error { return e.err }

// NewConnectError creates a new ConnectError.
func NewConnectError(cause error) *ConnectError {
	return &ConnectError{err: ErrConnectFailed, Cause: cause}
}

// SerializeError reports a failed message encoding. Extract with errors.As().
type SerializeError struct {
	err error

	// Cause is the underlying encoding error.
	Cause error
}

func (e *SerializeError) Error() string {
	return e.err.Error() + ": " + e.Cause.Error()
}

func (e *SerializeError) Unwrap() error { return e.err }

// NewSerializeError creates a new SerializeError.
func NewSerializeError(cause error) *SerializeError {
	return &SerializeError{err: ErrSerialize, Cause: cause}
}

// DeserializeError reports a failed frame decoding, including arity
// mismatches. Extract with errors.As().
type DeserializeError struct {
	err error

	// Cause is the underlying decoding error. Nil for arity mismatches.
	Cause error

	// Len is the element count of a rejected array when Cause is nil.
	Len int
}

func (e *DeserializeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: expected an array of %d elements, got %d", e.err, frameArity, e.Len)
	}
	return e.err.Error() + ": " + e.Cause.Error()
}

func (e *DeserializeError) Unwrap() error { return e.err }

// NewDeserializeError creates a DeserializeError from a decoding failure.
func NewDeserializeError(cause error) *DeserializeError {
	return &DeserializeError{err: ErrDeserialize, Cause: cause}
}

// NewArityError creates a DeserializeError for an array of the wrong length.
func NewArityError(length int) *DeserializeError {
	return &DeserializeError{err: ErrDeserialize, Len: length}
}

// SendError reports a failed transport write. It carries the message that
// failed for diagnostics; the payload stays opaque in the error text.
// Extract with errors.As().
type SendError struct {
	err error

	// Message is the message whose write failed.
	Message *Message

	// Cause is the underlying transport error.
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.err, e.Message, e.Cause)
}

func (e *SendError) Unwrap() error { return e.err }

// NewSendError creates a new SendError.
func NewSendError(msg *Message, cause error) *SendError {
	return &SendError{err: ErrSendFailed, Message: msg, Cause: cause}
}

// RecvError reports a failed transport read. Extract with errors.As().
type RecvError struct {
	err error

	// Cause is the underlying transport error.
	Cause error
}

func (e *RecvError) Error() string {
	return e.err.Error() + ": " + e.Cause.Error()
}

func (e *RecvError) Unwrap() error { return e.err }

// NewRecvError creates a new RecvError.
func NewRecvError(cause error) *RecvError {
	return &RecvError{err: ErrRecvFailed, Cause: cause}
}

// MessageTypeError reports an inbound frame that is not a text frame.
// Extract with errors.As().
type MessageTypeError struct {
	err error

	// FrameType is the frame type that was received.
	FrameType FrameType
}

func (e *MessageTypeError) Error() string {
	return fmt.Sprintf("%s: got %s frame, want %s", e.err, e.FrameType, TextFrame)
}

func (e *MessageTypeError) Unwrap() error { return e.err }

// NewMessageTypeError creates a new MessageTypeError.
func NewMessageTypeError(frameType FrameType) *MessageTypeError {
	return &MessageTypeError{err: ErrMessageType, FrameType: frameType}
}
