package phoenixchan

// Metrics defines the interface for collecting client metrics.
type Metrics interface {
	// Counter returns the counter metric with the given name.
	Counter(name string) Counter

	// Gauge returns the gauge metric with the given name.
	Gauge(name string) Gauge
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Value returns the current value.
	Value() float64
}

// Metric names published by the client.
const (
	// MetricFramesSent counts outbound frames, heartbeats included.
	MetricFramesSent = "phoenix_frames_sent_total"

	// MetricFramesReceived counts decoded inbound messages.
	MetricFramesReceived = "phoenix_frames_received_total"

	// MetricHeartbeatsSent counts heartbeat probes written on idle ticks.
	MetricHeartbeatsSent = "phoenix_heartbeats_sent_total"

	// MetricHeartbeatsSuppressed counts ticks absorbed because other
	// traffic already proved liveness.
	MetricHeartbeatsSuppressed = "phoenix_heartbeats_suppressed_total"

	// MetricConnected is 1 while the transport is open.
	MetricConnected = "phoenix_connected"
)

// clientMetrics holds the pre-bound instruments the client updates on the
// hot path.
type clientMetrics struct {
	framesSent           Counter
	framesReceived       Counter
	heartbeatsSent       Counter
	heartbeatsSuppressed Counter
	connected            Gauge
}

func newClientMetrics(m Metrics) clientMetrics {
	if m == nil {
		m = noopMetrics{}
	}
	return clientMetrics{
		framesSent:           m.Counter(MetricFramesSent),
		framesReceived:       m.Counter(MetricFramesReceived),
		heartbeatsSent:       m.Counter(MetricHeartbeatsSent),
		heartbeatsSuppressed: m.Counter(MetricHeartbeatsSuppressed),
		connected:            m.Gauge(MetricConnected),
	}
}

// noopMetrics discards all measurements.
type noopMetrics struct{}

func (noopMetrics) Counter(string) Counter { return noopInstrument{} }
func (noopMetrics) Gauge(string) Gauge     { return noopInstrument{} }

type noopInstrument struct{}

func (noopInstrument) Inc()           {}
func (noopInstrument) Add(float64)    {}
func (noopInstrument) Set(float64)    {}
func (noopInstrument) Dec()           {}
func (noopInstrument) Value() float64 { return 0 }
