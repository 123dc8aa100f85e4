package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveMeetings    prometheus.Gauge
	MeetingEvents     *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	ReconnectOutcomes *prometheus.CounterVec
	FramesWritten     prometheus.Counter
	FrameWriteErrors  prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer), namespace)
}

// NewMetricsWith registers instruments on a caller-owned registry. Tests use
// this to avoid duplicate registration in the default registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	return newMetrics(promauto.With(reg), namespace)
}

func newMetrics(factory promauto.Factory, namespace string) *Metrics {
	return &Metrics{
		ActiveMeetings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_meetings",
			Help:      "Number of guilds with a meeting currently recording.",
		}),
		MeetingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_events_total",
			Help:      "Meeting lifecycle events by type.",
		}, []string{"event"}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Voice reconnection attempts across all guilds.",
		}),
		ReconnectOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_outcomes_total",
			Help:      "Terminal reconnection outcomes by result.",
		}, []string{"outcome"}),
		FramesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Audio frames written to participant streams.",
		}),
		FrameWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_write_errors_total",
			Help:      "Participant stream write failures.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
