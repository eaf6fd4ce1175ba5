// Package metrics exports the atomic client and camera metrics to Prometheus.
package metrics

import (
	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/xpad"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xpad"

// Collector is a prometheus.Collector reading the metrics of one Camera and
// of its server connections at scrape time.
type Collector struct {
	cam *camera.Camera

	commands     *prometheus.Desc
	serverErrs   *prometheus.Desc
	protocolErrs *prometheus.Desc
	connFaults   *prometheus.Desc
	progress     *prometheus.Desc
	unknownLines *prometheus.Desc
	bytesRecv    *prometheus.Desc
	bytesSent    *prometheus.Desc
	framesRecv   *prometheus.Desc
	connected    *prometheus.Desc

	jobs          *prometheus.Desc
	jobErrs       *prometheus.Desc
	frames        *prometheus.Desc
	statusQueries *prometheus.Desc
	aborts        *prometheus.Desc
	acqState      *prometheus.Desc
	ithlOffset    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for cam. Every series carries the
// constant label camera=name.
func NewCollector(cam *camera.Camera, name string) *Collector {
	labels := prometheus.Labels{"camera": name}
	conn := []string{"connection"}
	client := func(n string, help string, vars ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "client", n), help, append(conn, vars...), labels)
	}
	camDesc := func(n string, help string, vars ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "camera", n), help, vars, labels)
	}

	return &Collector{
		cam: cam,

		commands:     client("commands_total", "Commands written to the acquisition server.", "verb"),
		serverErrs:   client("server_errors_total", "Errors reported by the acquisition server."),
		protocolErrs: client("protocol_errors_total", "Responses that violated the protocol."),
		connFaults:   client("connection_faults_total", "Connection faults."),
		progress:     client("progress_lines_total", "Progress lines received."),
		unknownLines: client("unknown_lines_total", "Lines received with an unknown marker."),
		bytesRecv:    client("bulk_received_bytes_total", "Payload bytes received by bulk transfers."),
		bytesSent:    client("bulk_sent_bytes_total", "Payload bytes sent by bulk transfers."),
		framesRecv:   client("frames_received_total", "Frames received."),
		connected:    client("connected", "1 while the connection is established."),

		jobs:          camDesc("jobs_total", "Jobs run by the acquisition worker.", "kind"),
		jobErrs:       camDesc("job_errors_total", "Jobs that ended with an error."),
		frames:        camDesc("frames_total", "Frames handed to the buffer manager."),
		statusQueries: camDesc("status_queries_total", "Detector status queries sent to the server."),
		aborts:        camDesc("aborts_total", "Abort requests."),
		acqState:      camDesc("acquisition_state", "Acquisition worker state, 1 for the current state.", "state"),
		ithlOffset:    camDesc("ithl_offset", "ITHL steps applied since the calibration was loaded."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.commands, c.serverErrs, c.protocolErrs, c.connFaults, c.progress,
		c.unknownLines, c.bytesRecv, c.bytesSent, c.framesRecv, c.connected,
		c.jobs, c.jobErrs, c.frames, c.statusQueries, c.aborts, c.acqState, c.ithlOffset,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.collectClient(ch, "primary", c.cam.Client())
	if ctl := c.cam.ControlClient(); ctl != nil {
		c.collectClient(ch, "control", ctl)
	}

	m := c.cam.Metrics()
	for kind, n := range m.JobCounts() {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.CounterValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.jobErrs, prometheus.CounterValue, float64(m.JobErrCount.Load()))
	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(m.FrameCount.Load()))
	ch <- prometheus.MustNewConstMetric(c.statusQueries, prometheus.CounterValue, float64(m.StatusQueryCount.Load()))
	ch <- prometheus.MustNewConstMetric(c.aborts, prometheus.CounterValue, float64(m.AbortCount.Load()))

	state := c.cam.AcqState()
	for _, s := range []camera.AcqState{camera.AcqIdle, camera.AcqArmed, camera.AcqRunning, camera.AcqDraining} {
		v := 0.0
		if s == state {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.acqState, prometheus.GaugeValue, v, s.String())
	}
	ch <- prometheus.MustNewConstMetric(c.ithlOffset, prometheus.GaugeValue, float64(c.cam.ITHLOffset()))
}

func (c *Collector) collectClient(ch chan<- prometheus.Metric, conn string, client *xpad.Client) {
	m := client.Metrics()

	for verb, n := range m.CommandCounts() {
		ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(n), conn, verb)
	}

	counters := []struct {
		desc *prometheus.Desc
		val  uint64
	}{
		{c.serverErrs, m.ServerErrCount.Load()},
		{c.protocolErrs, m.ProtocolErrCount.Load()},
		{c.connFaults, m.ConnFaultCount.Load()},
		{c.progress, m.ProgressCount.Load()},
		{c.unknownLines, m.UnknownLineCount.Load()},
		{c.bytesRecv, m.BulkBytesRecv.Load()},
		{c.bytesSent, m.BulkBytesSent.Load()},
		{c.framesRecv, m.FrameRecvCount.Load()},
	}
	for _, cnt := range counters {
		ch <- prometheus.MustNewConstMetric(cnt.desc, prometheus.CounterValue, float64(cnt.val), conn)
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, float64(m.ConnectedGauge.Load()), conn)
}
