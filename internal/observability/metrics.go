package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// Every method is safe on a nil receiver.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	Turns             *prometheus.CounterVec
	IntentDecisions   *prometheus.CounterVec
	RetrievalPaths    *prometheus.CounterVec
	EmbeddingCache    *prometheus.CounterVec
	RateLimited       *prometheus.CounterVec
	FirstChunkLatency prometheus.Histogram
	StageLatency      *prometheus.HistogramVec

	turnStages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream LLM and embedding errors by purpose.",
		}, []string{"purpose"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed chat turns by final intent.",
		}, []string{"intent"}),
		IntentDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_decisions_total",
			Help:      "Intent decisions by stage, source and label.",
		}, []string{"stage", "source", "label"}),
		RetrievalPaths: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_path_total",
			Help:      "Knowledge retrievals by the path that produced the result.",
		}, []string{"path"}),
		EmbeddingCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache lookups by result.",
		}, []string{"result"}),
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Rejected chat turns by limiter scope.",
		}, []string{"scope"}),
		FirstChunkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency from turn start to the first reply chunk in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 750, 1000, 1500, 2500, 5000},
		}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}, []string{"stage"}),
		turnStages: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstChunkLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstChunkLatency.Observe(float64(d.Milliseconds()))
	m.turnStages.Observe("first_chunk", durationMS(d))
}

// ObserveTurnStage records a stage duration in both the histogram and the rolling window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(durationMS(d))
	m.turnStages.Observe(stage, durationMS(d))
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil {
		return
	}
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.turnStages.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.turnStages.Reset()
}

func (m *Metrics) IncTurn(intent string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(intent).Inc()
}

func (m *Metrics) IncIntentDecision(stage, source, label string) {
	if m == nil {
		return
	}
	m.IntentDecisions.WithLabelValues(stage, source, label).Inc()
}

func (m *Metrics) IncRetrievalPath(path string) {
	if m == nil {
		return
	}
	m.RetrievalPaths.WithLabelValues(path).Inc()
}

func (m *Metrics) IncEmbeddingCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.EmbeddingCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncProviderError(purpose string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
