package supervisor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandleLivenessUpWhenNoCheck(t *testing.T) {
	s := NewServer(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	s.engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestHandleLivenessDownWhenCheckFails(t *testing.T) {
	s := NewServer(func() error { return errors.New("boom") })
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	s.engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestHandleLivenessUpWhenCheckSucceeds(t *testing.T) {
	s := NewServer(func() error { return nil })
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	s.engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := NewServer(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestNewMetricsRegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.JobsProcessed.WithLabelValues("bank1", "download", "host1").Inc()
	m.JobErrors.WithLabelValues("bank1", "download", "host1").Inc()
	m.DownloadBytes.WithLabelValues("bank1", "host1").Add(1024)
	m.DownloadSeconds.WithLabelValues("bank1", "host1").Add(3.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 4 {
		t.Fatalf("len(families) = %d, want 4 registered metric families", len(families))
	}
}

func TestMetricsObserveUpdatesAllCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe(MetricSample{Bank: "bank1", Host: "host1", Kind: "download", Bytes: 512, Seconds: 1.5})
	m.Observe(MetricSample{Bank: "bank1", Host: "host1", Kind: "download", Bytes: 256, Seconds: 0.5, Error: true})

	if got := testutil.ToFloat64(m.JobsProcessed.WithLabelValues("bank1", "download", "host1")); got != 2 {
		t.Errorf("JobsProcessed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.JobErrors.WithLabelValues("bank1", "download", "host1")); got != 1 {
		t.Errorf("JobErrors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DownloadBytes.WithLabelValues("bank1", "host1")); got != 768 {
		t.Errorf("DownloadBytes = %v, want 768", got)
	}
	if got := testutil.ToFloat64(m.DownloadSeconds.WithLabelValues("bank1", "host1")); got != 2 {
		t.Errorf("DownloadSeconds = %v, want 2", got)
	}
}

func TestMetricsBatchEndpointAcceptsSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewServer(nil).WithMetrics(m)

	body, err := json.Marshal([]MetricSample{
		{Bank: "bank1", Host: "host1", Kind: "download", Bytes: 100, Seconds: 1},
		{Bank: "bank1", Host: "host1", Kind: "download", Bytes: 200, Seconds: 2, Error: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/download/metrics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if got := testutil.ToFloat64(m.DownloadBytes.WithLabelValues("bank1", "host1")); got != 300 {
		t.Errorf("DownloadBytes = %v, want 300", got)
	}
	if got := testutil.ToFloat64(m.JobErrors.WithLabelValues("bank1", "download", "host1")); got != 1 {
		t.Errorf("JobErrors = %v, want 1", got)
	}
}
