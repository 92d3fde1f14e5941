package phoenixchan

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	// SubProtocol is the websocket sub-protocol asserted on every handshake.
	SubProtocol = "phoenix"

	// AuthTokenPrefix wraps the base64url-encoded bearer token registered
	// as a sub-protocol value.
	//
	// See https://github.com/phoenixframework/phoenix/blob/ad1a7ee2c9c29ff102b94242fdbb9cb14dd0dd4b/assets/js/phoenix/constants.js#L30
	AuthTokenPrefix = "base64url.bearer.phx."

	// ProtocolVersion is the serializer version pinned in the endpoint
	// query string.
	ProtocolVersion = "2.0.0"

	// DefaultKeepAlive is the default heartbeat interval, half the 10s
	// timeout Phoenix uses for its own heartbeats.
	DefaultKeepAlive = 5 * time.Second
)

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Handshake settings
	headers      http.Header
	subProtocols []string
	authToken    string // wrapped sub-protocol value, empty when unset

	// Transport settings
	tlsConfig       *tls.Config
	readBufferSize  int
	writeBufferSize int
	proxy           *ProxyConfig
	dialer          Dialer

	// Keep-alive interval
	keepAlive time.Duration

	// Observability
	logger  Logger
	metrics Metrics
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		headers:         make(http.Header),
		readBufferSize:  4096,
		writeBufferSize: 4096,
		keepAlive:       DefaultKeepAlive,
		logger:          NewNoOpLogger(),
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHeader adds a header to the handshake request.
func WithHeader(key, value string) Option {
	return func(o *clientOptions) {
		o.headers.Add(key, value)
	}
}

// WithHeaders adds all given headers to the handshake request.
func WithHeaders(headers http.Header) Option {
	return func(o *clientOptions) {
		for key, values := range headers {
			for _, value := range values {
				o.headers.Add(key, value)
			}
		}
	}
}

// WithSubProtocols registers extra sub-protocol values for the handshake.
// The fixed "phoenix" sub-protocol is always asserted and need not be
// listed.
func WithSubProtocols(protocols ...string) Option {
	return func(o *clientOptions) {
		o.subProtocols = append(o.subProtocols, protocols...)
	}
}

// WithAuthToken sets the bearer token to pass to the server. The raw token
// is base64url-encoded without padding, wrapped with the
// "base64url.bearer.phx." prefix and registered as a sub-protocol value.
func WithAuthToken(token string) Option {
	return func(o *clientOptions) {
		o.authToken = AuthTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(token))
	}
}

// WithTLS sets the TLS configuration for wss endpoints.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithBufferSizes sets the transport read and write buffer sizes in bytes.
// Zero keeps the defaults.
func WithBufferSizes(read, write int) Option {
	return func(o *clientOptions) {
		if read > 0 {
			o.readBufferSize = read
		}
		if write > 0 {
			o.writeBufferSize = write
		}
	}
}

// WithKeepAlive overrides the heartbeat interval.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *clientOptions) {
		if interval > 0 {
			o.keepAlive = interval
		}
	}
}

// WithProxy routes the connection through an HTTP CONNECT or SOCKS5 proxy.
func WithProxy(config *ProxyConfig) Option {
	return func(o *clientOptions) {
		o.proxy = config
	}
}

// WithDialer sets a custom transport dialer, replacing the built-in
// websocket one.
func WithDialer(dialer Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

// WithLogger sets the logger for connection and frame traces.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// handshakeSubProtocols returns the sub-protocol values asserted on the
// handshake: the fixed "phoenix" marker, any extra values, and the wrapped
// bearer token when one is set.
func (o *clientOptions) handshakeSubProtocols() []string {
	subProtocols := append([]string{SubProtocol}, o.subProtocols...)
	if o.authToken != "" {
		subProtocols = append(subProtocols, o.authToken)
	}
	return subProtocols
}

// applyOptions applies all options to the default options.
func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// normalizeEndpoint ensures the endpoint query pins the serializer version.
// An existing vsn parameter is left untouched; otherwise vsn=2.0.0 is
// appended, preserving the parameters already there.
func normalizeEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	if query.Has("vsn") {
		return endpoint, nil
	}

	if u.RawQuery == "" {
		u.RawQuery = "vsn=" + ProtocolVersion
	} else {
		u.RawQuery += "&vsn=" + ProtocolVersion
	}

	return u.String(), nil
}

// Dial connects to a Phoenix socket endpoint and returns a client.
func Dial(endpoint string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), endpoint, opts...)
}

// DialContext connects to a Phoenix socket endpoint with a context. The
// context bounds the handshake only; it does not control the lifetime of
// the returned client.
func DialContext(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	options := applyOptions(opts...)

	target, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	dialer := options.dialer
	if dialer == nil {
		wsDialer, err := newWSDialer(options, options.handshakeSubProtocols())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		dialer = wsDialer
	}

	transport, err := dialer.Dial(ctx, target, options.headers)
	if err != nil {
		return nil, NewConnectError(err)
	}

	options.logger.Debug("connected", LogFields{LogFieldEndpoint: target})

	return newClient(transport, options), nil
}
