// Package metrics exposes the conversation orchestrator's Prometheus
// instrumentation, grounded on
// _examples/BaSui01-agentflow/internal/metrics/collector.go's promauto
// wiring pattern, renamed to the turn-taking/collaborator metrics this
// orchestrator needs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

var _ orchestrator.MetricsRecorder = (*Collector)(nil)

// Collector holds every metric the orchestrator loop and its collaborator
// calls report against.
type Collector struct {
	turnsTotal           *prometheus.CounterVec
	bargeInsTotal         *prometheus.CounterVec
	responseTaskDuration *prometheus.HistogramVec
	collaboratorDuration *prometheus.HistogramVec
	collaboratorErrors   *prometheus.CounterVec
	activeConversations  prometheus.Gauge
	markAcksTotal        prometheus.Counter
}

// NewCollector registers every metric under the given namespace (e.g.
// "lokutor_orchestrator") against the default Prometheus registerer.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWith registers against an explicit registerer, so tests can
// pass a fresh prometheus.NewRegistry() instead of polluting the global one.
func NewCollectorWith(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of turn-taking classifications by state and dispatched action",
			},
			[]string{"state", "action"},
		),
		bargeInsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "barge_ins_total",
				Help:      "Total number of human barge-ins, split short vs long",
			},
			[]string{"kind"},
		),
		responseTaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_task_duration_seconds",
				Help:      "End-to-end STT->LLM->TTS duration for a completed response task",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		collaboratorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collaborator_duration_seconds",
				Help:      "Duration of individual collaborator calls (stt, llm, tts)",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		collaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_errors_total",
				Help:      "Total number of collaborator call failures",
			},
			[]string{"collaborator"},
		),
		activeConversations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_conversations",
				Help:      "Number of conversations with a running orchestrator loop",
			},
		),
		markAcksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mark_acks_total",
				Help:      "Total number of agent-audio mark acknowledgements received",
			},
		),
	}
}

func (c *Collector) ObserveTurn(state, action string) {
	c.turnsTotal.WithLabelValues(state, action).Inc()
}

func (c *Collector) ObserveBargeIn(kind string) {
	c.bargeInsTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveResponseTask(outcome string, seconds float64) {
	c.responseTaskDuration.WithLabelValues(outcome).Observe(seconds)
}

func (c *Collector) ObserveCollaboratorCall(collaborator string, seconds float64) {
	c.collaboratorDuration.WithLabelValues(collaborator).Observe(seconds)
}

func (c *Collector) ObserveCollaboratorError(collaborator string) {
	c.collaboratorErrors.WithLabelValues(collaborator).Inc()
}

func (c *Collector) SetActiveConversations(n int) {
	c.activeConversations.Set(float64(n))
}

func (c *Collector) IncMarkAck() {
	c.markAcksTotal.Inc()
}
