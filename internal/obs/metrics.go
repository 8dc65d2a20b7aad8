// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Process-wide Prometheus collectors, consumed in-process only -- no HTTP
// endpoint is exposed; a caller that wants to scrape them wires its own
// promhttp.Handler against prometheus.DefaultRegisterer.
var (
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_length",
		Help: "Current length of each named queue in the fabric",
	}, []string{"queue"})
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_jobs_completed_total",
		Help: "Total number of analysis jobs that finished successfully",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_jobs_failed_total",
		Help: "Total number of analysis jobs that finished with an error",
	})
	CorrectiveTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corrective_triggered_total",
		Help: "Total number of tasks re-enqueued onto a corrective queue",
	})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "job_driver_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	})
	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_coordinator_active",
		Help: "Number of in-flight queue item processors",
	})
)

func init() {
	prometheus.MustRegister(QueueLength, JobsCompleted, JobsFailed, CorrectiveTriggered, CircuitBreakerState, WorkerActive)
}
