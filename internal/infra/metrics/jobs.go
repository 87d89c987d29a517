package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		aiJobsProcessedTotal,
		queueJobsSubmittedTotal,
		queueSubmissionsRejectedTotal,
		queuePendingJobs,
		queueJobWaitSeconds,
	)
}

var (
	aiJobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_processed_total",
			Help: "Total number of AI jobs processed, labeled by terminal status and error code.",
		},
		[]string{"status", "code"}, // 'completed'|'failed', '' or error code
	)

	queueJobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_submitted_total",
			Help: "Jobs accepted into the queue by kind.",
		},
		[]string{"kind"},
	)

	queueSubmissionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_submissions_rejected_total",
			Help: "Submissions rejected before queueing, by error code.",
		},
		[]string{"code"},
	)

	queuePendingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_pending_jobs",
			Help: "Jobs currently waiting in the FIFO index.",
		},
	)

	queueJobWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_wait_seconds",
			Help:    "Time between submission and the start of processing.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 300},
		},
	)
)

func IncAIJob(status, code string) {
	aiJobsProcessedTotal.WithLabelValues(norm(status), code).Inc()
}

func IncJobSubmitted(kind string) {
	queueJobsSubmittedTotal.WithLabelValues(norm(kind)).Inc()
}

func IncSubmissionRejected(code string) {
	queueSubmissionsRejectedTotal.WithLabelValues(code).Inc()
}

func SetPendingJobs(n int) {
	queuePendingJobs.Set(float64(n))
}

func ObserveJobWait(seconds float64) {
	queueJobWaitSeconds.Observe(seconds)
}
