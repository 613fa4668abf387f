package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homeprov"

var (
	Registry = prometheus.NewRegistry()

	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Provisioning requests by operation and response status.",
	}, []string{"operation", "status"})

	probeAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "home_probe_attempts",
		Help:      "Stat calls needed before EOS reported a definite home status.",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
	})

	homesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "homes_created_total",
		Help:      "Home creation script runs by result.",
	}, []string{"result"})

	dirFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "directory_failures_total",
		Help:      "Requested directories that could not be created.",
	})
)

func init() {
	Registry.MustRegister(
		requests,
		probeAttempts,
		homesCreated,
		dirFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func ObserveResponse(operation string, status int) {
	requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

func ObserveProbeAttempts(n int) {
	probeAttempts.Observe(float64(n))
}

func ObserveHomeCreation(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	homesCreated.WithLabelValues(result).Inc()
}

func AddDirFailures(n int) {
	dirFailures.Add(float64(n))
}

// MetricsServer exposes /metrics on its own listener so it can stay on a
// private interface while the API is public.
type MetricsServer struct {
	srv *http.Server
}

func NewServer(addr string) *MetricsServer {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	return &MetricsServer{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}
