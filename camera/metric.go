package camera

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// CameraMetrics contains atomic metrics for a Camera.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type CameraMetrics struct {
	// JobCount indicates the number of jobs run by the acquisition worker.
	JobCount atomic.Uint64
	// JobErrCount indicates the number of jobs that ended with an error.
	JobErrCount atomic.Uint64
	// FrameCount indicates the number of frames handed to the buffer manager.
	FrameCount atomic.Uint64
	// StatusQueryCount indicates the number of status queries sent to the server.
	StatusQueryCount atomic.Uint64
	// AbortCount indicates the number of abort requests.
	AbortCount atomic.Uint64

	kinds *xsync.MapOf[string, *atomic.Uint64]
}

func newCameraMetrics() *CameraMetrics {
	return &CameraMetrics{kinds: xsync.NewMapOf[string, *atomic.Uint64]()}
}

// JobCounts returns a snapshot of the number of jobs run per job kind.
func (m *CameraMetrics) JobCounts() map[string]uint64 {
	out := make(map[string]uint64, m.kinds.Size())
	m.kinds.Range(func(kind string, cnt *atomic.Uint64) bool {
		out[kind] = cnt.Load()
		return true
	})

	return out
}

func (m *CameraMetrics) incJobCount() {
	m.JobCount.Add(1)
}

func (m *CameraMetrics) incJobKindCount(kind JobKind) {
	cnt, _ := m.kinds.LoadOrCompute(kind.String(), func() *atomic.Uint64 { return &atomic.Uint64{} })
	cnt.Add(1)
}

func (m *CameraMetrics) incJobErrCount() {
	m.JobErrCount.Add(1)
}

func (m *CameraMetrics) incFrameCount() {
	m.FrameCount.Add(1)
}

func (m *CameraMetrics) incStatusQueryCount() {
	m.StatusQueryCount.Add(1)
}

func (m *CameraMetrics) incAbortCount() {
	m.AbortCount.Add(1)
}
