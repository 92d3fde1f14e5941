package phoenixchan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFrame is one scripted inbound event for a fakeTransport.
type fakeFrame struct {
	frameType FrameType
	data      []byte
	err       error
}

// fakeTransport is an in-memory Transport recording written frames and
// replaying scripted inbound frames.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error

	inbound   chan fakeFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan fakeFrame, 16),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) ReadFrame() (FrameType, []byte, error) {
	select {
	case frame := <-t.inbound:
		if frame.err != nil {
			return 0, nil, frame.err
		}
		return frame.frameType, frame.data, nil
	case <-t.closed:
		return 0, nil, net.ErrClosed
	}
}

func (t *fakeTransport) WriteFrame(_ FrameType, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.writeErr != nil {
		return t.writeErr
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	t.frames = append(t.frames, buf)

	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// inject queues one scripted inbound frame.
func (t *fakeTransport) inject(frame fakeFrame) {
	t.inbound <- frame
}

// injectText queues one inbound text frame.
func (t *fakeTransport) injectText(data string) {
	t.inject(fakeFrame{frameType: TextFrame, data: []byte(data)})
}

// written returns a copy of the frames written so far.
func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.frames))
	for i, frame := range t.frames {
		out[i] = string(frame)
	}
	return out
}

func (t *fakeTransport) setWriteErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// newTestClient builds a client over a fresh fake transport. The long
// default keep-alive keeps the timer out of tests that don't race it.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()

	transport := newFakeTransport()

	options := applyOptions(append([]Option{WithKeepAlive(time.Hour)}, opts...)...)
	client := newClient(transport, options)

	t.Cleanup(func() { client.Close() })

	return client, transport
}

func TestClientWriteScenarios(t *testing.T) {
	client, transport := newTestClient(t)

	joinRef, err := client.JoinPayload("miami:weather", map[string]any{"some": "param"})
	require.NoError(t, err)
	assert.Equal(t, "0", joinRef)

	leaveRef, err := client.Leave("miami:weather")
	require.NoError(t, err)
	assert.Equal(t, "1", leaveRef)

	sendRef, err := client.Send("miami:weather", "report_emergency", map[string]any{"category": "sharknado"})
	require.NoError(t, err)
	assert.Equal(t, "2", sendRef)

	assert.Equal(t, []string{
		`["0","0","miami:weather","phx_join",{"some":"param"}]`,
		`[null,"1","miami:weather","phx_leave",{}]`,
		`[null,"2","miami:weather","report_emergency",{"category":"sharknado"}]`,
	}, transport.written())
}

func TestClientJoinEmptyPayload(t *testing.T) {
	client, transport := newTestClient(t)

	joinRef, err := client.Join("room:lobby")
	require.NoError(t, err)
	assert.Equal(t, "0", joinRef)

	assert.Equal(t, []string{`["0","0","room:lobby","phx_join",{}]`}, transport.written())
}

func TestClientReferenceMonotonicity(t *testing.T) {
	client, _ := newTestClient(t)

	for i := 0; i < 10; i++ {
		sendRef, err := client.Send("room:lobby", "ping", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), sendRef)
	}
}

func TestClientReferenceWrap(t *testing.T) {
	client, _ := newTestClient(t)

	client.ref.Store(math.MaxUint64)

	sendRef, err := client.Send("room:lobby", "ping", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", sendRef)

	sendRef, err = client.Send("room:lobby", "ping", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "0", sendRef)
}

func TestClientConcurrentWrites(t *testing.T) {
	client, transport := newTestClient(t)

	const writers = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := client.Send("room:lobby", "ping", map[string]any{"n": 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	frames := transport.written()
	require.Len(t, frames, writers)

	// Every frame must be a whole, valid five-element array, and the
	// allocated references one permutation of 0..writers-1.
	refs := make([]string, 0, writers)
	for _, frame := range frames {
		var elements []json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(frame), &elements))
		require.Len(t, elements, frameArity)

		var msgRef string
		require.NoError(t, json.Unmarshal(elements[1], &msgRef))
		refs = append(refs, msgRef)
	}

	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	for i, r := range refs {
		assert.Equal(t, fmt.Sprint(i), r)
	}
}

func TestClientReceive(t *testing.T) {
	client, transport := newTestClient(t)

	transport.injectText(`[null,null,"rooms:test:dashboard_oSgokqqBReiKRg_c1nYqMQ_9899","watch_added",{}]`)

	msg, err := client.Receive()
	require.NoError(t, err)

	assert.Nil(t, msg.JoinRef)
	assert.Nil(t, msg.Ref)
	assert.Equal(t, "rooms:test:dashboard_oSgokqqBReiKRg_c1nYqMQ_9899", msg.Topic)
	assert.Equal(t, "watch_added", msg.Event)
	assert.Equal(t, map[string]any{}, msg.Payload)
}

func TestClientReceiveErrors(t *testing.T) {
	t.Run("non-text frame", func(t *testing.T) {
		client, transport := newTestClient(t)

		transport.inject(fakeFrame{frameType: BinaryFrame, data: []byte{0x01}})

		_, err := client.Receive()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMessageType)

		var typeErr *MessageTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, BinaryFrame, typeErr.FrameType)
	})

	t.Run("undecodable frame", func(t *testing.T) {
		client, transport := newTestClient(t)

		transport.injectText(`not json`)

		_, err := client.Receive()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDeserialize)
	})

	t.Run("wrong arity frame", func(t *testing.T) {
		client, transport := newTestClient(t)

		transport.injectText(`["0","0","room:lobby"]`)

		_, err := client.Receive()
		require.Error(t, err)

		var deserErr *DeserializeError
		require.ErrorAs(t, err, &deserErr)
		assert.Equal(t, 3, deserErr.Len)
	})

	t.Run("stream end", func(t *testing.T) {
		client, transport := newTestClient(t)

		transport.inject(fakeFrame{err: io.EOF})

		_, err := client.Receive()
		assert.ErrorIs(t, err, ErrDisconnected)

		// The stream stays ended for later calls.
		_, err = client.Receive()
		assert.ErrorIs(t, err, ErrDisconnected)
	})

	t.Run("read failure", func(t *testing.T) {
		client, transport := newTestClient(t)

		cause := errors.New("wire fell out")
		transport.inject(fakeFrame{err: cause})

		_, err := client.Receive()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRecvFailed)

		var recvErr *RecvError
		require.ErrorAs(t, err, &recvErr)
		assert.Equal(t, cause, recvErr.Cause)
	})
}

func TestClientSendError(t *testing.T) {
	client, transport := newTestClient(t)

	cause := errors.New("broken pipe")
	transport.setWriteErr(cause)

	_, err := client.Send("miami:weather", "report_emergency", map[string]any{"category": "sharknado"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "miami:weather", sendErr.Message.Topic)
	assert.Equal(t, "report_emergency", sendErr.Message.Event)
	assert.Equal(t, cause, sendErr.Cause)

	// The payload stays opaque in the error text.
	assert.Contains(t, err.Error(), "<payload>")
	assert.NotContains(t, err.Error(), "sharknado")
}

func TestClientHeartbeatOnIdleTick(t *testing.T) {
	client, transport := newTestClient(t, WithKeepAlive(30*time.Millisecond))

	received := make(chan error, 1)
	go func() {
		_, err := client.Receive()
		received <- err
	}()

	// No traffic before the first tick, so the tick writes one heartbeat.
	require.Eventually(t, func() bool {
		return len(transport.written()) >= 1
	}, time.Second, 5*time.Millisecond)

	frames := transport.written()
	assert.Equal(t, `[null,"0","phoenix","heartbeat",{}]`, frames[0])

	transport.injectText(`[null,null,"room:lobby","noop",{}]`)
	require.NoError(t, <-received)
}

func TestClientHeartbeatSuppression(t *testing.T) {
	client, transport := newTestClient(t, WithKeepAlive(60*time.Millisecond))

	received := make(chan error, 1)
	go func() {
		_, err := client.Receive()
		received <- err
	}()

	// Keep the connection busy across several tick intervals; every tick
	// must be absorbed by the traffic.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := client.Send("room:lobby", "ping", map[string]any{})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	transport.injectText(`[null,null,"room:lobby","noop",{}]`)
	require.NoError(t, <-received)

	for _, frame := range transport.written() {
		msg, err := DecodeMessage([]byte(frame))
		require.NoError(t, err)
		assert.NotEqual(t, EventHeartbeat, msg.Event)
	}
}

func TestClientHeartbeatAbsorbsOwnTraffic(t *testing.T) {
	client, transport := newTestClient(t, WithKeepAlive(40*time.Millisecond))

	received := make(chan error, 1)
	go func() {
		_, err := client.Receive()
		received <- err
	}()

	// An idle connection alternates heartbeat and absorbed tick: the
	// heartbeat itself counts as traffic for the following tick.
	require.Eventually(t, func() bool {
		return len(transport.written()) >= 2
	}, time.Second, 5*time.Millisecond)

	transport.injectText(`[null,null,"room:lobby","noop",{}]`)
	require.NoError(t, <-received)

	frames := transport.written()
	assert.Equal(t, `[null,"0","phoenix","heartbeat",{}]`, frames[0])
	assert.Equal(t, `[null,"1","phoenix","heartbeat",{}]`, frames[1])
}

func TestClientSequenceWithHeartbeat(t *testing.T) {
	client, transport := newTestClient(t, WithKeepAlive(50*time.Millisecond))

	_, err := client.JoinPayload("miami:weather", map[string]any{"some": "param"})
	require.NoError(t, err)

	_, err = client.Leave("miami:weather")
	require.NoError(t, err)

	received := make(chan error, 1)
	go func() {
		_, err := client.Receive()
		received <- err
	}()

	// First tick is absorbed by the join/leave traffic, the second writes
	// the heartbeat with reference 2.
	require.Eventually(t, func() bool {
		return len(transport.written()) >= 3
	}, time.Second, 5*time.Millisecond)

	_, err = client.Send("miami:weather", "report_emergency", map[string]any{"category": "sharknado"})
	require.NoError(t, err)

	transport.injectText(`[null,null,"room:lobby","noop",{}]`)
	require.NoError(t, <-received)

	assert.Equal(t, []string{
		`["0","0","miami:weather","phx_join",{"some":"param"}]`,
		`[null,"1","miami:weather","phx_leave",{}]`,
		`[null,"2","phoenix","heartbeat",{}]`,
		`[null,"3","miami:weather","report_emergency",{"category":"sharknado"}]`,
	}, transport.written())
}

func TestClientReceiveSerialized(t *testing.T) {
	client, transport := newTestClient(t)

	results := make(chan *Message, 2)
	for i := 0; i < 2; i++ {
		go func() {
			msg, err := client.Receive()
			assert.NoError(t, err)
			results <- msg
		}()
	}

	transport.injectText(`[null,null,"room:lobby","first",{}]`)
	transport.injectText(`[null,null,"room:lobby","second",{}]`)

	events := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-results:
			events[msg.Event] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for receive")
		}
	}

	assert.Equal(t, map[string]bool{"first": true, "second": true}, events)
}

func TestClientClose(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Join("room:lobby")
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = client.Leave("room:lobby")
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = client.Send("room:lobby", "ping", nil)
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = client.Receive()
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClientMetrics(t *testing.T) {
	metrics := NewMemoryMetrics()

	transport := newFakeTransport()
	options := applyOptions(WithKeepAlive(time.Hour), WithMetrics(metrics))
	client := newClient(transport, options)

	assert.Equal(t, float64(1), metrics.Gauge(MetricConnected).Value())

	_, err := client.Send("room:lobby", "ping", map[string]any{})
	require.NoError(t, err)

	transport.injectText(`[null,null,"room:lobby","pong",{}]`)
	_, err = client.Receive()
	require.NoError(t, err)

	assert.Equal(t, float64(1), metrics.Counter(MetricFramesSent).Value())
	assert.Equal(t, float64(1), metrics.Counter(MetricFramesReceived).Value())

	require.NoError(t, client.Close())
	assert.Equal(t, float64(0), metrics.Gauge(MetricConnected).Value())
}
