package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter publishes the latest run's measurements on a registry,
// optionally serving /metrics over HTTP and writing the text format to a
// file for textfile-collector setups.
type PrometheusExporter struct {
	registry *prometheus.Registry

	testsTotal   *prometheus.GaugeVec
	testDuration *prometheus.GaugeVec
	runDuration  prometheus.Gauge
	durationQ    *prometheus.GaugeVec
	workers      prometheus.Gauge
	incomplete   prometheus.Gauge

	server *http.Server
	file   string
}

// PrometheusOption is a functional option for PrometheusExporter.
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusHTTP serves /metrics on the given port.
func WithPrometheusHTTP(port int) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.server = &http.Server{Addr: fmt.Sprintf(":%d", port)}
	}
}

// WithPrometheusTextfile additionally writes the exposition format to path
// on every export.
func WithPrometheusTextfile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.file = path
	}
}

// NewPrometheusExporter creates a Prometheus exporter.
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	reg := prometheus.NewRegistry()
	p := &PrometheusExporter{
		registry: reg,
		testsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptf_tests_total",
			Help: "Tests in the last run by terminal status.",
		}, []string{"status"}),
		testDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptf_test_duration_ms",
			Help: "Per-test duration of the last run in milliseconds.",
		}, []string{"suite", "test", "status"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptf_run_duration_ms",
			Help: "Wall-clock duration of the last run in milliseconds.",
		}),
		durationQ: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptf_test_duration_quantile_ms",
			Help: "Test duration percentiles of the last run in milliseconds.",
		}, []string{"quantile"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptf_run_workers",
			Help: "Worker processes used by the last run, 0 for sequential.",
		}),
		incomplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptf_run_incomplete",
			Help: "1 when the last run hit its hard deadline.",
		}),
	}
	reg.MustRegister(p.testsTotal, p.testDuration, p.runDuration, p.durationQ, p.workers, p.incomplete)

	for _, opt := range opts {
		opt(p)
	}

	if p.server != nil {
		p.server.Handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		go func() {
			_ = p.server.ListenAndServe()
		}()
	}
	return p
}

// Export publishes the measurement set.
func (p *PrometheusExporter) Export(m *RunMetrics) error {
	p.testsTotal.Reset()
	p.testsTotal.WithLabelValues("passed").Set(float64(m.Passed))
	p.testsTotal.WithLabelValues("failed").Set(float64(m.Failed))
	p.testsTotal.WithLabelValues("skipped").Set(float64(m.Skipped))
	p.testsTotal.WithLabelValues("fixme").Set(float64(m.Fixme))
	p.testsTotal.WithLabelValues("expected-failure").Set(float64(m.ExpectedFailure))
	p.testsTotal.WithLabelValues("unexpected-pass").Set(float64(m.UnexpectedPass))

	p.testDuration.Reset()
	for _, t := range m.Tests {
		p.testDuration.WithLabelValues(t.Suite, t.Name, t.Status).Set(t.DurationMs)
	}

	p.runDuration.Set(m.DurationMs)
	p.durationQ.WithLabelValues("0.50").Set(m.P50DurationMs)
	p.durationQ.WithLabelValues("0.90").Set(m.P90DurationMs)
	p.durationQ.WithLabelValues("0.99").Set(m.P99DurationMs)
	p.workers.Set(float64(m.Workers))
	if m.Incomplete {
		p.incomplete.Set(1)
	} else {
		p.incomplete.Set(0)
	}

	if p.file != "" {
		if err := prometheus.WriteToTextfile(p.file, p.registry); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}
	return nil
}

// Close shuts down the HTTP endpoint when one was started.
func (p *PrometheusExporter) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
