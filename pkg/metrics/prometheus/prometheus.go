// Package prometheus is the concrete dispatcher.Metrics implementation,
// exposing counters and histograms over command completions, event
// acknowledgements, inbound handling, and remote-slot contention.
package prometheus

import (
	"time"

	"github.com/marmos91/corerpc/pkg/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus-backed dispatcher.Metrics implementation.
type Metrics struct {
	commandsCompleted *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	eventsSent        *prometheus.CounterVec
	eventsAcked       *prometheus.CounterVec
	ackDuration       *prometheus.HistogramVec
	inboundHandled    *prometheus.CounterVec
	inboundDuration   *prometheus.HistogramVec
	callbacksInvoked  *prometheus.CounterVec
	remotePoolWait    prometheus.Histogram
}

var durationBuckets = []float64{
	0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
}

// New registers the dispatcher's metric families on reg and returns a
// dispatcher.Metrics that records to them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		commandsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corerpc_commands_completed_total",
			Help: "Total commands completed, by group, id, and outcome.",
		}, []string{"group", "id", "outcome"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corerpc_command_duration_milliseconds",
			Help:    "Round-trip duration of completed commands, in milliseconds.",
			Buckets: durationBuckets,
		}, []string{"group", "id"}),
		eventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corerpc_events_sent_total",
			Help: "Total events sent, by group and id.",
		}, []string{"group", "id"}),
		eventsAcked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corerpc_events_acked_total",
			Help: "Total event acknowledgements received, by group and id.",
		}, []string{"group", "id"}),
		ackDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corerpc_event_ack_duration_milliseconds",
			Help:    "Time between sending an event and receiving its ack, in milliseconds.",
			Buckets: durationBuckets,
		}, []string{"group", "id"}),
		inboundHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corerpc_inbound_handled_total",
			Help: "Total inbound commands/events handled, by group, id, and outcome.",
		}, []string{"group", "id", "outcome"}),
		inboundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corerpc_inbound_handler_duration_milliseconds",
			Help:    "Duration of inbound handler execution, in milliseconds.",
			Buckets: durationBuckets,
		}, []string{"group", "id"}),
		callbacksInvoked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corerpc_callbacks_invoked_total",
			Help: "Total callback trampoline invocations, by handler id and outcome.",
		}, []string{"handler_id", "outcome"}),
		remotePoolWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "corerpc_remote_pool_wait_milliseconds",
			Help:    "Time spent waiting to reserve a remote endpoint slot, in milliseconds.",
			Buckets: durationBuckets,
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

// CommandCompleted implements dispatcher.Metrics.
func (m *Metrics) CommandCompleted(group dispatcher.Group, id dispatcher.ID, d time.Duration, err error) {
	labels := prometheus.Labels{"group": groupLabel(group), "id": idLabel(id), "outcome": outcome(err)}
	m.commandsCompleted.With(labels).Inc()
	m.commandDuration.WithLabelValues(groupLabel(group), idLabel(id)).Observe(ms(d))
}

// EventSent implements dispatcher.Metrics.
func (m *Metrics) EventSent(group dispatcher.Group, id dispatcher.ID) {
	m.eventsSent.WithLabelValues(groupLabel(group), idLabel(id)).Inc()
}

// EventAcked implements dispatcher.Metrics.
func (m *Metrics) EventAcked(group dispatcher.Group, id dispatcher.ID, d time.Duration) {
	m.eventsAcked.WithLabelValues(groupLabel(group), idLabel(id)).Inc()
	m.ackDuration.WithLabelValues(groupLabel(group), idLabel(id)).Observe(ms(d))
}

// InboundHandled implements dispatcher.Metrics.
func (m *Metrics) InboundHandled(group dispatcher.Group, id dispatcher.ID, d time.Duration, err error) {
	labels := prometheus.Labels{"group": groupLabel(group), "id": idLabel(id), "outcome": outcome(err)}
	m.inboundHandled.With(labels).Inc()
	m.inboundDuration.WithLabelValues(groupLabel(group), idLabel(id)).Observe(ms(d))
}

// CallbackInvoked implements dispatcher.Metrics.
func (m *Metrics) CallbackInvoked(handlerID string, err error) {
	m.callbacksInvoked.WithLabelValues(handlerID, outcome(err)).Inc()
}

// RemotePoolWait implements dispatcher.Metrics.
func (m *Metrics) RemotePoolWait(d time.Duration) {
	m.remotePoolWait.Observe(ms(d))
}
