package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the registration wizard.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	WizardsMounted     prometheus.Counter
	Transitions        *prometheus.CounterVec
	RejectedAdvances   *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
	RegionFetches      *prometheus.CounterVec
	HandoffOperations  *prometheus.CounterVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WizardsMounted: f.NewCounter(prometheus.CounterOpts{
			Name: "relawan_wizards_mounted_total",
			Help: "Total number of registration wizards mounted",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relawan_wizard_transitions_total",
			Help: "Wizard state transitions by source and target state",
		}, []string{"from", "to"}),
		RejectedAdvances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relawan_wizard_rejected_transitions_total",
			Help: "Forward transitions blocked by validation, by state",
		}, []string{"state"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relawan_submissions_total",
			Help: "Registration submissions by outcome (success, validation, transport, ignored, detached)",
		}, []string{"outcome"}),
		SubmissionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relawan_submission_duration_seconds",
			Help:    "Duration of registry create-registration calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RegionFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relawan_region_fetches_total",
			Help: "Region directory fetches by result",
		}, []string{"result"}),
		HandoffOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relawan_handoff_operations_total",
			Help: "Handoff marker operations by op and result",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) IncrementWizardsMounted() {
	if m != nil {
		m.WizardsMounted.Inc()
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncrementRejected(state string) {
	if m != nil {
		m.RejectedAdvances.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

// ObserveSubmission records a registry call started at start.
func (m *Metrics) ObserveSubmission(start time.Time) {
	if m != nil {
		m.SubmissionDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncrementRegionFetch(result string) {
	if m != nil {
		m.RegionFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementHandoff(op, result string) {
	if m != nil {
		m.HandoffOperations.WithLabelValues(op, result).Inc()
	}
}
