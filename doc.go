// Package phoenixchan is a client for Phoenix channels, the topic-based
// publish-subscribe protocol Phoenix servers speak over a websocket.
//
// The package covers the protocol engine: the reference-id correlation
// scheme, the canonical five-element wire encoding, and a connection
// object safe to use from concurrent call sites. It deliberately leaves
// out reconnection, topic-membership tracking and flow control.
//
// # Wire format
//
// Every frame is a UTF-8 JSON array of exactly five elements:
//
//	[join_ref, ref, topic, event, payload]
//
// References are decimal strings allocated from a per-connection counter.
// EncodeMessage and DecodeMessage convert between Message values and this
// form; arrays of any other length are rejected.
//
// # Client
//
// Dial performs the websocket handshake and returns a connected client:
//
//	client, err := phoenixchan.Dial("wss://example.com/socket/websocket",
//	    phoenixchan.WithAuthToken(token),
//	)
//	defer client.Close()
//
//	ref, err := client.JoinPayload("miami:weather", map[string]any{"some": "param"})
//
//	for {
//	    msg, err := client.Receive()
//	    if errors.Is(err, phoenixchan.ErrDisconnected) {
//	        break
//	    }
//	    // ...
//	}
//
// Join, Leave and Send may be called concurrently with each other and
// with Receive; frames never interleave. Receive also drives the
// keep-alive probe: a heartbeat goes out only on ticks with no other
// traffic since the previous one, so liveness is proved without redundant
// frames.
//
// # Errors
//
// Every failure maps onto a small taxonomy of sentinel errors (check with
// errors.Is) and typed wrappers carrying detail (extract with errors.As).
// The client never retries and never tears the connection down on its
// own; recovery after a failure is the caller's decision.
package phoenixchan
