package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks checkout saga outcomes and reconciler activity.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	resumes  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Checkout sagas by the state they settled in.",
	}, []string{"state", "reason"})
	resumes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconciler_resumes_total",
		Help: "Stale checkout sagas picked up by the reconciler.",
	}, []string{"state", "result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Wall time of synchronous checkout requests.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(outcomes, resumes, duration)
	return &CheckoutMetrics{outcomes: outcomes, resumes: resumes, duration: duration}
}

// IncOutcome counts a saga reaching state for the given reason.
func (c *CheckoutMetrics) IncOutcome(state, reason string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(state), reason).Inc()
}

func (c *CheckoutMetrics) IncResume(state, result string) {
	if c == nil || c.resumes == nil {
		return
	}
	c.resumes.WithLabelValues(normalizeLabel(state), result).Inc()
}

func (c *CheckoutMetrics) ObserveDuration(d time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.Observe(d.Seconds())
}
