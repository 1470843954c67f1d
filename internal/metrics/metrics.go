// Package metrics exposes the library's prometheus.Collector. The server
// and its clients update a Collector's counters/gauges directly; nothing
// in this package starts an HTTP exposition endpoint — embedders wire the
// Collector into their own prometheus.Registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector tracks connection and frame-level counters for one Server.
// It satisfies prometheus.Collector so it can be registered directly.
type Collector struct {
	activeClients prometheus.Gauge
	framesRead    prometheus.Counter
	framesWritten prometheus.Counter
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
	protocolErrs  prometheus.Counter
}

// New builds a Collector with metric names namespaced under "tcpws".
func New() *Collector {
	return &Collector{
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tcpws",
			Name:      "active_clients",
			Help:      "Number of currently connected WebSocket clients.",
		}),
		framesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpws",
			Name:      "frames_read_total",
			Help:      "Total number of WebSocket frames read from clients.",
		}),
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpws",
			Name:      "frames_written_total",
			Help:      "Total number of WebSocket frames written to clients.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpws",
			Name:      "bytes_read_total",
			Help:      "Total number of payload bytes read from clients.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpws",
			Name:      "bytes_written_total",
			Help:      "Total number of payload bytes written to clients.",
		}),
		protocolErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpws",
			Name:      "protocol_errors_total",
			Help:      "Total number of frames rejected for protocol violations.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.activeClients.Collect(ch)
	c.framesRead.Collect(ch)
	c.framesWritten.Collect(ch)
	c.bytesRead.Collect(ch)
	c.bytesWritten.Collect(ch)
	c.protocolErrs.Collect(ch)
}

// ClientConnected increments the active client gauge.
func (c *Collector) ClientConnected() { c.activeClients.Inc() }

// ClientDisconnected decrements the active client gauge.
func (c *Collector) ClientDisconnected() { c.activeClients.Dec() }

// FrameRead records one inbound frame of n payload bytes.
func (c *Collector) FrameRead(n int) {
	c.framesRead.Inc()
	c.bytesRead.Add(float64(n))
}

// FrameWritten records one outbound frame of n payload bytes.
func (c *Collector) FrameWritten(n int) {
	c.framesWritten.Inc()
	c.bytesWritten.Add(float64(n))
}

// ProtocolError records one rejected frame.
func (c *Collector) ProtocolError() { c.protocolErrs.Inc() }
