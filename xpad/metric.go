package xpad

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ClientMetrics contains atomic metrics for a Client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// CommandCount indicates the number of commands written to the server.
	CommandCount atomic.Uint64
	// ServerErrCount indicates the number of errors reported by the server.
	ServerErrCount atomic.Uint64
	// ProtocolErrCount indicates the number of protocol violations.
	ProtocolErrCount atomic.Uint64
	// ConnFaultCount indicates the number of connection faults.
	ConnFaultCount atomic.Uint64
	// ProgressCount indicates the number of progress lines received.
	ProgressCount atomic.Uint64
	// UnknownLineCount indicates the number of lines with an unknown marker.
	UnknownLineCount atomic.Uint64

	// BulkBytesRecv indicates the number of payload bytes received by bulk transfers.
	BulkBytesRecv atomic.Uint64
	// BulkBytesSent indicates the number of payload bytes sent by bulk transfers.
	BulkBytesSent atomic.Uint64
	// FrameRecvCount indicates the number of frames received.
	FrameRecvCount atomic.Uint64

	// ConnectedGauge is 1 while the client is connected.
	ConnectedGauge atomic.Uint32

	verbs *xsync.MapOf[string, *atomic.Uint64]
}

func newClientMetrics() *ClientMetrics {
	return &ClientMetrics{verbs: xsync.NewMapOf[string, *atomic.Uint64]()}
}

// CommandCounts returns a snapshot of the number of commands sent per command verb.
func (m *ClientMetrics) CommandCounts() map[string]uint64 {
	out := make(map[string]uint64, m.verbs.Size())
	m.verbs.Range(func(verb string, cnt *atomic.Uint64) bool {
		out[verb] = cnt.Load()
		return true
	})

	return out
}

func (m *ClientMetrics) incCommandCount(verb string) {
	m.CommandCount.Add(1)
	cnt, _ := m.verbs.LoadOrCompute(verb, func() *atomic.Uint64 { return &atomic.Uint64{} })
	cnt.Add(1)
}

func (m *ClientMetrics) incServerErrCount() {
	m.ServerErrCount.Add(1)
}

func (m *ClientMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}

func (m *ClientMetrics) incConnFaultCount() {
	m.ConnFaultCount.Add(1)
}

func (m *ClientMetrics) incProgressCount() {
	m.ProgressCount.Add(1)
}

func (m *ClientMetrics) incUnknownLineCount() {
	m.UnknownLineCount.Add(1)
}

func (m *ClientMetrics) addBulkBytesRecv(n int) {
	m.BulkBytesRecv.Add(uint64(n))
}

func (m *ClientMetrics) addBulkBytesSent(n int) {
	m.BulkBytesSent.Add(uint64(n))
}

func (m *ClientMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *ClientMetrics) setConnected(connected bool) {
	if connected {
		m.ConnectedGauge.Store(1)
	} else {
		m.ConnectedGauge.Store(0)
	}
}
