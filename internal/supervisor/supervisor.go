// Package supervisor implements C8: a health-check endpoint and service
// self-registration (spec §4.8 summarized into the C8 row of §2, §6
// "HTTP admin surface" minus the session CRUD routes, which stay an
// external collaborator per spec §1 Excluded). Grounded on
// github.com/gin-gonic/gin + github.com/prometheus/client_golang (as
// wired in sgl-project-ome's web-console server and modelagent metrics)
// and github.com/hashicorp/consul/api (named, not grounded, per
// SPEC_FULL.md — spec §4.8/§6 name Consul explicitly).
package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the counters C5/C7 feed as jobs flow through the system,
// tagged by bank and host per spec §4.8 ("Expose /metrics ... tagged by
// bank and host").
type Metrics struct {
	JobsProcessed   *prometheus.CounterVec
	JobErrors       *prometheus.CounterVec
	DownloadBytes   *prometheus.CounterVec
	DownloadSeconds *prometheus.CounterVec
}

// MetricSample is one file's post-transfer report, the unit the batch
// endpoint in spec §4.8 ("a batch of metric samples, one per downloaded
// file") accepts.
type MetricSample struct {
	Bank    string  `json:"bank"`
	Host    string  `json:"host"`
	Kind    string  `json:"kind"`
	Bytes   uint64  `json:"bytes"`
	Seconds float64 `json:"seconds"`
	Error   bool    `json:"error"`
}

// NewMetrics registers the counters with registerer (prometheus.DefaultRegisterer
// when nil), matching sgl-project-ome's promauto.With(registerer) idiom.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	jobLabels := []string{"bank", "kind", "host"}
	transferLabels := []string{"bank", "host"}
	return &Metrics{
		JobsProcessed: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "biomaj_download_jobs_processed_total",
			Help: "Number of list/download jobs processed, by bank, kind and host.",
		}, jobLabels),
		JobErrors: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "biomaj_download_job_errors_total",
			Help: "Number of list/download jobs that ended in error, by bank, kind and host.",
		}, jobLabels),
		DownloadBytes: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "biomaj_download_bytes_total",
			Help: "Cumulative bytes transferred, by bank and host.",
		}, transferLabels),
		DownloadSeconds: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "biomaj_download_seconds_total",
			Help: "Cumulative transfer time in seconds, by bank and host.",
		}, transferLabels),
	}
}

// Observe folds one MetricSample into the counters, the same update a
// locally-fed job performs, so both the in-process OnDownload hook and the
// POST /api/download/metrics batch endpoint keep a single counting path.
func (m *Metrics) Observe(s MetricSample) {
	m.JobsProcessed.WithLabelValues(s.Bank, s.Kind, s.Host).Inc()
	if s.Error {
		m.JobErrors.WithLabelValues(s.Bank, s.Kind, s.Host).Inc()
	}
	m.DownloadBytes.WithLabelValues(s.Bank, s.Host).Add(float64(s.Bytes))
	m.DownloadSeconds.WithLabelValues(s.Bank, s.Host).Add(s.Seconds)
}

// LivenessCheck reports whether the worker is healthy (e.g. its queue
// connection is open). Supplied by the caller (cmd/biomaj-download-worker).
type LivenessCheck func() error

// Server exposes the health endpoint and Prometheus metrics (spec §6:
// "GET /api/download — liveness", "GET /metrics", "POST
// /api/download/metrics — batch of metric samples").
type Server struct {
	engine  *gin.Engine
	healthy LivenessCheck
	metrics *Metrics
}

// NewServer builds the gin engine, matching the teacher stack's
// router.Use(gin.Recovery()) + grouped-routes idiom.
func NewServer(healthy LivenessCheck) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, healthy: healthy}
	engine.GET("/api/download", s.handleLiveness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// WithMetrics attaches m and registers the batch-sample endpoint spec
// §4.8 calls for; callers that only need liveness/metrics scraping can
// skip it.
func (s *Server) WithMetrics(m *Metrics) *Server {
	s.metrics = m
	s.engine.POST("/api/download/metrics", s.handleMetricsBatch)
	return s
}

func (s *Server) handleLiveness(c *gin.Context) {
	if s.healthy != nil {
		if err := s.healthy(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "up"})
}

// handleMetricsBatch accepts one metric sample per downloaded file and
// folds each into the registered counters (spec §4.8).
func (s *Server) handleMetricsBatch(c *gin.Context) {
	var samples []MetricSample
	if err := c.ShouldBindJSON(&samples); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.metrics != nil {
		for _, sample := range samples {
			s.metrics.Observe(sample)
		}
	}
	c.JSON(http.StatusOK, gin.H{"accepted": len(samples)})
}

// Run serves the health/metrics endpoints on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Registration holds the Consul self-registration parameters (spec §4.8,
// §6: external collaborator, summarized here as a thin wrapper).
type Registration struct {
	ServiceID      string
	ServiceName    string
	Address        string
	Port           int
	HealthCheckURL string
	Interval       time.Duration
}

// Register registers the worker with Consul using a periodic HTTP
// health check against HealthCheckURL.
func Register(client *consulapi.Client, reg Registration) error {
	interval := reg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	err := client.Agent().ServiceRegister(&consulapi.AgentServiceRegistration{
		ID:      reg.ServiceID,
		Name:    reg.ServiceName,
		Address: reg.Address,
		Port:    reg.Port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:     reg.HealthCheckURL,
			Interval: interval.String(),
			Timeout:  "5s",
		},
	})
	if err != nil {
		return errors.Wrap(err, "supervisor: consul register")
	}
	slog.Info("supervisor: registered with consul", "service", reg.ServiceName, "id", reg.ServiceID)
	return nil
}

// Deregister removes the worker's Consul registration on shutdown.
func Deregister(client *consulapi.Client, serviceID string) error {
	return errors.Wrap(client.Agent().ServiceDeregister(serviceID), "supervisor: consul deregister")
}
