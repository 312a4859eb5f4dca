package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/becomeliminal/nim-assistant/engine"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Turns             *prometheus.CounterVec
	ToolCalls         *prometheus.CounterVec
	ModelCalls        *prometheus.CounterVec
	ModelLatency      prometheus.Histogram
	DocumentsIngested *prometheus.CounterVec
	ActiveWebsockets  prometheus.Gauge
	WSMessages        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var _ engine.Recorder = (*Metrics)(nil)

// NewMetrics registers the instruments with reg. A nil reg uses the
// default Prometheus registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed chat turns by outcome.",
		}, []string{"outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ModelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model invocations by round and outcome.",
		}, []string{"round", "outcome"}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Model invocation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Uploaded documents by final status.",
		}, []string{"status"}),
		ActiveWebsockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websockets",
			Help:      "Number of open chat websocket connections.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveModelCall(round int, latency time.Duration, err error) {
	m.ModelCalls.WithLabelValues(strconv.Itoa(round), outcome(err != nil)).Inc()
	m.ModelLatency.Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) ObserveToolCall(tool string, _ time.Duration, failed bool) {
	m.ToolCalls.WithLabelValues(tool, outcome(failed)).Inc()
}

func (m *Metrics) ObserveTurn(result string) {
	m.Turns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIngest(status string) {
	m.DocumentsIngested.WithLabelValues(status).Inc()
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(failed bool) string {
	if failed {
		return engine.OutcomeError
	}
	return engine.OutcomeSuccess
}
