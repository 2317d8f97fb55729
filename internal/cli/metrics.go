package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/Swind/go-task-graph/internal/config"
	promexp "github.com/Swind/go-task-graph/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes one scheduler's metrics on /metrics. A nil
// *metricsServer is valid and does nothing.
type metricsServer struct {
	cfg      config.MetricsConfig
	registry *prom.Registry
	exporter *promexp.MetricsExporter
	poller   *promexp.SnapshotPoller

	server *http.Server
	addr   string
}

// newMetricsServer returns nil when cfg.Addr is empty.
func newMetricsServer(cfg config.MetricsConfig) (*metricsServer, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	reg := prom.NewRegistry()
	exporter, err := promexp.NewMetricsExporter(cfg.Namespace, reg, promexp.ExporterOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating metrics exporter: %w", err)
	}
	poller, err := promexp.NewSnapshotPoller(reg, cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot poller: %w", err)
	}
	return &metricsServer{cfg: cfg, registry: reg, exporter: exporter, poller: poller}, nil
}

// Metrics is the sink to put in core.PoolConfig.
func (m *metricsServer) Metrics() core.Metrics {
	if m == nil {
		return nil
	}
	return m.exporter
}

// Start polls s and begins serving. The listener is bound before Start
// returns.
func (m *metricsServer) Start(ctx context.Context, s *core.Scheduler, logger *slog.Logger) error {
	if m == nil {
		return nil
	}
	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.cfg.Addr, err)
	}
	m.addr = ln.Addr().String()

	m.poller.AddPool(s.ID(), s)
	m.poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", m.addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", m.addr, "path", "/metrics")
	return nil
}

// Stop takes a final snapshot and shuts the HTTP server down.
func (m *metricsServer) Stop() {
	if m == nil || m.server == nil {
		return
	}
	m.poller.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)
}
