package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Checks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "checks_total",
		Help:      "Domain checks completed, by result (available, unavailable, error).",
	}, []string{"result"})
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the availability endpoint, by outcome category.",
	}, []string{"outcome"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups, by result (hit, miss, failed, error).",
	}, []string{"result"})
	Retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "retries_total",
		Help:      "Upstream retries after a failed attempt.",
	})
	DNSPrecheck = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "dns_precheck_total",
		Help:      "DNS pre-check results (registered, unknown, error).",
	}, []string{"result"})
	GateInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "avail_checker",
		Name:      "gate_in_flight",
		Help:      "Checks currently holding a concurrency slot.",
	})
	Chunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "chunks_total",
		Help:      "Chunks dispatched by the scheduler.",
	})
	Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avail_checker",
		Name:      "runs_total",
		Help:      "Finished runs, by status.",
	}, []string{"status"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "avail_checker",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of finished runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(Checks, UpstreamRequests, CacheLookups, Retries, DNSPrecheck, GateInFlight, Chunks, Runs, RunDuration)
}

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Non-blocking when run in goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// AddrFromEnv returns listen address from METRICS_ADDR or default ":9090".
// An explicitly empty METRICS_ADDR disables the listener.
func AddrFromEnv() string {
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		return v
	}
	return ":9090"
}
