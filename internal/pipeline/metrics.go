package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for pipeline observability. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	roundsTotal  *prometheus.CounterVec
	claimsTotal  *prometheus.CounterVec
	tokensTotal  *prometheus.CounterVec
	retriesTotal prometheus.Counter
}

// NewMetrics registers pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		roundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeatlas_rounds_total",
			Help: "Analysis rounds by terminal status.",
		}, []string{"status"}),
		claimsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeatlas_claims_total",
			Help: "Model claims by validation result.",
		}, []string{"result"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeatlas_tokens_total",
			Help: "Model tokens consumed by direction.",
		}, []string{"direction"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeatlas_round_retries_total",
			Help: "Round retries triggered by drop rate or quality gate.",
		}),
	}
}

func (m *Metrics) observeRound(result *RoundResult) {
	if m == nil {
		return
	}
	m.roundsTotal.WithLabelValues(string(result.Status)).Inc()
	m.claimsTotal.WithLabelValues("validated").Add(float64(result.Validation.Validated))
	m.claimsTotal.WithLabelValues("corrected").Add(float64(result.Validation.Corrected))
	if result.Status == StatusRetried {
		m.retriesTotal.Inc()
	}
}

func (m *Metrics) observeUsage(usage RoundUsage) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	m.tokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
}
