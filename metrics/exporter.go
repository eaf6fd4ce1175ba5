package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/arloliu/go-xpad/camera"
	"github.com/arloliu/go-xpad/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// NewRegistry returns a registry holding the Go runtime and process
// collectors and one Collector per camera, labelled by its map key.
func NewRegistry(cams map[string]*camera.Camera) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	for name, cam := range cams {
		if err := reg.Register(NewCollector(cam, name)); err != nil {
			return nil, fmt.Errorf("metrics: register camera %s: %w", name, err)
		}
	}

	return reg, nil
}

// Exporter serves a registry over HTTP.
type Exporter struct {
	addr   string
	path   string
	reg    *prometheus.Registry
	logger logger.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewExporter returns an exporter serving reg on addr at path. It also
// answers /health.
func NewExporter(addr string, path string, reg *prometheus.Registry, l logger.Logger) *Exporter {
	if path == "" {
		path = "/metrics"
	}
	if l == nil {
		l = logger.GetLogger()
	}

	return &Exporter{addr: addr, path: path, reg: reg, logger: l.With("component", "metrics")}
}

// Start listens and serves in the background.
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.srv != nil {
		return errors.New("metrics: exporter already started")
	}

	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", e.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(e.path, promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	e.srv, e.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics exporter stopped", "error", err)
		}
	}()
	e.logger.Info("metrics exporter started", "addr", ln.Addr().String(), "path", e.path)

	return nil
}

// Addr returns the listening address, empty before Start.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ln == nil {
		return ""
	}

	return e.ln.Addr().String()
}

// Shutdown stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv := e.srv
	e.srv, e.ln = nil, nil
	e.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
