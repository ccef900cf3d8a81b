package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datopian/flowmanager/internal/health"
)

var (
	// Submission service

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowmanager",
		Name:      "upload_duration_seconds",
		Help:      "Duration of the upload/submission path.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "uploads_total",
		Help:      "Total upload attempts, by outcome.",
	}, []string{"outcome"})

	// Status reducer

	ReducerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowmanager",
		Name:      "reducer_update_duration_seconds",
		Help:      "Duration of one status-reducer Update call, cascade included.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	FlowsTerminatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "flows_terminated_total",
		Help:      "Total flows that reached a terminal status, by status.",
	}, []string{"status"})

	CascadeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "cascade_failures_total",
		Help:      "Total dependant pipelines failed via cascade propagation.",
	})

	// Failure-event fanout

	FanoutQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowmanager",
		Name:      "fanout_queue_depth",
		Help:      "Number of pending jobs on the side-effect fanout queue.",
	})

	FanoutJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "fanout_jobs_total",
		Help:      "Total fanout jobs processed, by sink and outcome.",
	}, []string{"sink", "outcome"})

	// Scheduler loop

	SchedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowmanager",
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Time taken to process one scheduler-loop tick.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulerResubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "scheduler_resubmissions_total",
		Help:      "Total datasets resubmitted by the scheduler loop, by outcome.",
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowmanager",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmanager",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		UploadDuration,
		UploadsTotal,
		ReducerDuration,
		FlowsTerminatedTotal,
		CascadeFailuresTotal,
		FanoutQueueDepth,
		FanoutJobsTotal,
		SchedulerTickDuration,
		SchedulerResubmissionsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealth(w, result)
	})

	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
