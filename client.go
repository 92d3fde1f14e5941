package phoenixchan

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// emptyPayload is the `{}` payload of leave and heartbeat frames.
func emptyPayload() any {
	return map[string]any{}
}

// inboundFrame is one tagged event posted by the read pump.
type inboundFrame struct {
	frameType FrameType
	data      []byte
	err       error
}

// Client is a connection to a Phoenix socket endpoint.
//
// One client multiplexes every joined topic over a single transport. The
// write half and read half are independently exclusive: a send and a
// receive never block each other, while operations competing for the same
// half serialize through that half's lock. Reference allocation and the
// liveness flag are lock-free atomics.
//
// The client never reconnects and never retries. After a transport
// failure the connection stays unusable and recovery is the caller's
// decision.
type Client struct {
	transport Transport
	options   *clientOptions
	log       Logger
	metrics   clientMetrics

	// ref is the monotonic reference counter. Every outbound frame
	// increments it exactly once; it wraps on overflow.
	ref atomic.Uint64

	// sentSinceTick records a successful write since the last keep-alive
	// tick. A tick that swaps it from true is absorbed silently.
	sentSinceTick atomic.Bool

	// writeMu is the write half. Whole frames go out under it, so
	// concurrent senders serialize arbitrarily but atomically.
	writeMu sync.Mutex

	// readMu is the read half, held for the whole duration of a Receive.
	readMu sync.Mutex

	ticker *time.Ticker

	// frames carries tagged events from the read pump. Capacity one keeps
	// the next inbound frame pending across Receive calls.
	frames chan inboundFrame

	// done releases the read pump when the client is closed.
	done   chan struct{}
	closed atomic.Bool
}

// newClient wraps an established transport with the connection state.
// The reference counter starts at zero; nothing survives a reconnect.
func newClient(transport Transport, options *clientOptions) *Client {
	c := &Client{
		transport: transport,
		options:   options,
		log:       options.logger,
		metrics:   newClientMetrics(options.metrics),
		ticker:    time.NewTicker(options.keepAlive),
		frames:    make(chan inboundFrame, 1),
		done:      make(chan struct{}),
	}

	c.metrics.connected.Set(1)

	go c.readPump()

	return c
}

// readPump forwards inbound frames into the frames channel. It exits on
// the first read failure, closing the channel so pending and future
// receives observe the end of the stream.
func (c *Client) readPump() {
	for {
		frameType, data, err := c.transport.ReadFrame()
		if err != nil {
			select {
			case c.frames <- inboundFrame{err: err}:
			case <-c.done:
			}
			close(c.frames)
			return
		}

		select {
		case c.frames <- inboundFrame{frameType: frameType, data: data}:
		case <-c.done:
			close(c.frames)
			return
		}
	}
}

// nextRef allocates the next message reference. Allocation order is
// strictly increasing, but two callers may still write their frames in
// the opposite order: allocation and write-lock acquisition are separate
// steps.
func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1)-1, 10)
}

// Join subscribes the connection to a topic with an empty payload.
// It returns the reference the server echoes in its reply.
func (c *Client) Join(topic string) (string, error) {
	return c.JoinPayload(topic, emptyPayload())
}

// JoinPayload subscribes the connection to a topic, passing the payload to
// the server channel's join callback. The frame carries the allocated
// reference as both join_ref and ref.
func (c *Client) JoinPayload(topic string, payload any) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	ref := c.nextRef()
	msg := &Message{
		JoinRef: &ref,
		Ref:     &ref,
		Topic:   topic,
		Event:   EventJoin,
		Payload: payload,
	}

	if err := c.write(msg); err != nil {
		return "", err
	}

	return ref, nil
}

// Leave unsubscribes the connection from a topic.
func (c *Client) Leave(topic string) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	ref := c.nextRef()
	msg := &Message{
		Ref:     &ref,
		Topic:   topic,
		Event:   EventLeave,
		Payload: emptyPayload(),
	}

	if err := c.write(msg); err != nil {
		return "", err
	}

	return ref, nil
}

// Send pushes an event with a payload to a joined topic.
func (c *Client) Send(topic, event string, payload any) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	ref := c.nextRef()
	msg := &Message{
		Ref:     &ref,
		Topic:   topic,
		Event:   event,
		Payload: payload,
	}

	if err := c.write(msg); err != nil {
		return "", err
	}

	return ref, nil
}

// write encodes the message and writes it as one text frame under the
// write half, then marks the liveness flag.
func (c *Client) write(msg *Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = c.transport.WriteFrame(TextFrame, data)
	c.writeMu.Unlock()

	if err != nil {
		return NewSendError(msg, err)
	}

	c.sentSinceTick.Store(true)
	c.metrics.framesSent.Inc()
	c.log.Debug("frame sent", LogFields{
		LogFieldTopic: msg.Topic,
		LogFieldEvent: msg.Event,
		LogFieldRef:   refString(msg.Ref),
	})

	return nil
}

// heartbeat writes a liveness probe through the normal write path.
func (c *Client) heartbeat() error {
	ref := c.nextRef()
	msg := &Message{
		Ref:     &ref,
		Topic:   TopicPhoenix,
		Event:   EventHeartbeat,
		Payload: emptyPayload(),
	}

	if err := c.write(msg); err != nil {
		return err
	}

	c.metrics.heartbeatsSent.Inc()

	return nil
}

// Receive blocks until the next message arrives, the stream ends, or a
// read fails. It holds the read half for its whole duration; a concurrent
// Receive waits until the first one returns.
//
// While waiting it races the keep-alive timer against the pending inbound
// frame. A tick that follows a recent write is absorbed; a tick on an
// idle connection writes one heartbeat and resumes waiting on the same
// pending frame. Exactly one of the two happens per tick.
//
// The stream ending yields ErrDisconnected, a non-text frame a
// MessageTypeError, an undecodable frame a DeserializeError, and any
// other read failure a RecvError.
func (c *Client) Receive() (*Message, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		select {
		case <-c.ticker.C:
			if c.sentSinceTick.Swap(false) {
				// Traffic since the last tick already proved liveness.
				c.metrics.heartbeatsSuppressed.Inc()
				continue
			}
			if err := c.heartbeat(); err != nil {
				return nil, err
			}

		case frame, ok := <-c.frames:
			if !ok {
				return nil, ErrDisconnected
			}
			if frame.err != nil {
				return nil, recvError(frame.err)
			}
			if frame.frameType != TextFrame {
				return nil, NewMessageTypeError(frame.frameType)
			}

			msg, err := DecodeMessage(frame.data)
			if err != nil {
				return nil, err
			}

			c.metrics.framesReceived.Inc()
			c.log.Debug("frame received", LogFields{
				LogFieldTopic: msg.Topic,
				LogFieldEvent: msg.Event,
				LogFieldRef:   refString(msg.Ref),
			})

			return msg, nil
		}
	}
}

// recvError maps a transport read failure onto the error taxonomy. An
// orderly end of the stream is ErrDisconnected, everything else a
// RecvError.
func recvError(err error) error {
	var closeErr *websocket.CloseError
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.As(err, &closeErr) {
		return ErrDisconnected
	}
	return NewRecvError(err)
}

// Close stops the keep-alive timer and closes the underlying transport.
// Closing twice is a no-op.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.ticker.Stop()
	close(c.done)
	c.metrics.connected.Set(0)

	return c.transport.Close()
}
