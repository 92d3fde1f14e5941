package phoenixchan

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// FrameType identifies the kind of a websocket data frame. The values
// mirror the websocket opcodes.
type FrameType int

const (
	// TextFrame is a UTF-8 text frame. Every channel message is one.
	TextFrame FrameType = FrameType(websocket.TextMessage)

	// BinaryFrame is a binary frame.
	BinaryFrame FrameType = FrameType(websocket.BinaryMessage)

	// CloseFrame signals the end of the stream.
	CloseFrame FrameType = FrameType(websocket.CloseMessage)

	// PingFrame is a transport-level ping control frame.
	PingFrame FrameType = FrameType(websocket.PingMessage)

	// PongFrame is a transport-level pong control frame.
	PongFrame FrameType = FrameType(websocket.PongMessage)
)

// String returns the string representation of the frame type.
func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	case CloseFrame:
		return "close"
	case PingFrame:
		return "ping"
	case PongFrame:
		return "pong"
	default:
		return "unknown"
	}
}

// Transport is one full-duplex frame stream carrying channel messages.
//
// ReadFrame blocks until the next frame arrives, the stream ends, or the
// read fails. WriteFrame writes one whole frame; implementations need not
// be safe for concurrent writers, the client serializes them.
type Transport interface {
	// ReadFrame returns the next inbound frame.
	ReadFrame() (FrameType, []byte, error)

	// WriteFrame writes one frame.
	WriteFrame(frameType FrameType, data []byte) error

	// Close closes the stream.
	Close() error
}

// Dialer establishes transports to channel endpoints.
type Dialer interface {
	// Dial connects to the endpoint with the given context and handshake
	// headers.
	Dial(ctx context.Context, endpoint string, headers http.Header) (Transport, error)
}

// wsTransport adapts a websocket connection to the Transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadFrame() (FrameType, []byte, error) {
	frameType, data, err := t.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	return FrameType(frameType), data, nil
}

func (t *wsTransport) WriteFrame(frameType FrameType, data []byte) error {
	return t.conn.WriteMessage(int(frameType), data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// WSDialer connects to Phoenix socket endpoints over WebSocket.
type WSDialer struct {
	// Dialer is the underlying websocket dialer. If nil, the default
	// dialer is used.
	Dialer *websocket.Dialer
}

// Dial connects to the endpoint and returns the handshaken transport.
func (d *WSDialer) Dial(ctx context.Context, endpoint string, headers http.Header) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}

	return &wsTransport{conn: conn}, nil
}

// newWSDialer builds the websocket dialer from the configured options and
// the final sub-protocol list.
func newWSDialer(options *clientOptions, subProtocols []string) (*WSDialer, error) {
	dialer := &websocket.Dialer{
		Subprotocols:    subProtocols,
		ReadBufferSize:  options.readBufferSize,
		WriteBufferSize: options.writeBufferSize,
		TLSClientConfig: options.tlsConfig,
		Proxy:           http.ProxyFromEnvironment,
	}

	if options.proxy != nil {
		proxyDialer, err := NewProxyDialer(options.proxy.URL, options.proxy.Username, options.proxy.Password)
		if err != nil {
			return nil, err
		}
		dialer.NetDialContext = proxyDialer.DialContext
		dialer.Proxy = nil
	}

	return &WSDialer{Dialer: dialer}, nil
}
