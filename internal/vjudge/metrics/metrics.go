// Package metrics exposes vjudge's Prometheus metrics: submissions
// processed per OJ/verdict, active worker gauges, in-memory queue depth,
// and judge round-trip duration, following the teacher's
// internal/metrics/prometheus.go layout.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vjudge_submissions_processed_total",
			Help: "Total number of submissions reaching a terminal verdict",
		},
		[]string{"oj_name", "verdict"},
	)

	submitQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vjudge_submit_queue_depth",
			Help: "Current depth of a per-OJ in-memory submit queue",
		},
		[]string{"oj_name"},
	)

	problemQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vjudge_problem_queue_depth",
			Help: "Current depth of a per-OJ in-memory problem-refresh queue",
		},
		[]string{"oj_name"},
	)

	activeSubmitters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vjudge_active_submitters",
			Help: "Number of running Submitter/StatusCrawler pairs per OJ",
		},
		[]string{"oj_name"},
	)

	activeProblemCrawlers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vjudge_active_problem_crawlers",
			Help: "Number of running ProblemCrawlers across all OJs",
		},
	)

	judgeRoundTrip = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vjudge_judge_round_trip_seconds",
			Help:    "Time from submit dispatch to terminal verdict",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"oj_name"},
	)

	loginFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vjudge_login_failures_total",
			Help: "Total number of failed account logins per OJ",
		},
		[]string{"oj_name"},
	)
)

func init() {
	prometheus.MustRegister(
		submissionsProcessed,
		submitQueueDepth,
		problemQueueDepth,
		activeSubmitters,
		activeProblemCrawlers,
		judgeRoundTrip,
		loginFailures,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SubmissionMetrics groups the counters/histograms touched by Submitter and
// StatusCrawler as a submission moves toward a terminal verdict.
type SubmissionMetrics struct{}

// NewSubmissionMetrics builds a SubmissionMetrics.
func NewSubmissionMetrics() *SubmissionMetrics { return &SubmissionMetrics{} }

// RecordTerminal records a submission reaching a terminal verdict.
func (m *SubmissionMetrics) RecordTerminal(ojName, verdict string) {
	submissionsProcessed.WithLabelValues(ojName, verdict).Inc()
}

// ObserveRoundTrip records the submit-to-verdict duration for ojName.
func (m *SubmissionMetrics) ObserveRoundTrip(ojName string, d time.Duration) {
	judgeRoundTrip.WithLabelValues(ojName).Observe(d.Seconds())
}

// RecordLoginFailure records a failed account login for ojName.
func (m *SubmissionMetrics) RecordLoginFailure(ojName string) {
	loginFailures.WithLabelValues(ojName).Inc()
}

// QueueMetrics groups the gauges touched by SubmitterHandler/CrawlerHandler
// as in-memory queues grow and shrink.
type QueueMetrics struct{}

// NewQueueMetrics builds a QueueMetrics.
func NewQueueMetrics() *QueueMetrics { return &QueueMetrics{} }

// SetSubmitQueueDepth records the current length of ojName's submit queue.
func (m *QueueMetrics) SetSubmitQueueDepth(ojName string, depth int) {
	submitQueueDepth.WithLabelValues(ojName).Set(float64(depth))
}

// SetProblemQueueDepth records the current length of ojName's problem queue.
func (m *QueueMetrics) SetProblemQueueDepth(ojName string, depth int) {
	problemQueueDepth.WithLabelValues(ojName).Set(float64(depth))
}

// WorkerMetrics groups the gauges tracking how many workers are alive.
type WorkerMetrics struct{}

// NewWorkerMetrics builds a WorkerMetrics.
func NewWorkerMetrics() *WorkerMetrics { return &WorkerMetrics{} }

// SetActiveSubmitters records how many submitter pairs ojName currently has.
func (m *WorkerMetrics) SetActiveSubmitters(ojName string, count int) {
	activeSubmitters.WithLabelValues(ojName).Set(float64(count))
}

// IncActiveProblemCrawlers increments the global problem-crawler gauge.
func (m *WorkerMetrics) IncActiveProblemCrawlers() { activeProblemCrawlers.Inc() }

// DecActiveProblemCrawlers decrements the global problem-crawler gauge.
func (m *WorkerMetrics) DecActiveProblemCrawlers() { activeProblemCrawlers.Dec() }
