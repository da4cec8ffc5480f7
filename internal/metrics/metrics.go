// Package metrics exposes Prometheus counters for the plug emulator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PacketsReceived prometheus.Counter
	PacketsDropped  *prometheus.CounterVec
	PollsAnswered   prometheus.Counter
	RepliesBuilt    prometheus.Counter
	RepliesSent     prometheus.Counter
	SendErrors      prometheus.Counter
	QueueOverflows  prometheus.Counter
	HandleDuration  prometheus.Histogram
	OutletPower     *prometheus.GaugeVec
	SourceUpdates   *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PacketsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_packets_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		PacketsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senselink_packets_dropped_total",
			Help: "Datagrams dropped without a reply, by reason",
		}, []string{"reason"}),
		PollsAnswered: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_polls_answered_total",
			Help: "Discovery polls that produced replies",
		}),
		RepliesBuilt: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_replies_built_total",
			Help: "Per-outlet replies built, including dry-run replies",
		}),
		RepliesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_replies_sent_total",
			Help: "Per-outlet replies written to the socket",
		}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_send_errors_total",
			Help: "Replies that failed to send",
		}),
		QueueOverflows: f.NewCounter(prometheus.CounterOpts{
			Name: "senselink_queue_overflows_total",
			Help: "Datagrams dropped because the processing queue was full",
		}),
		HandleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "senselink_handle_duration_seconds",
			Help:    "Time spent handling one datagram",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		}),
		OutletPower: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senselink_outlet_power_watts",
			Help: "Last power reading reported for each outlet",
		}, []string{"outlet"}),
		SourceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senselink_source_updates_total",
			Help: "Power updates applied from external sources",
		}, []string{"source"}),
	}
}

// The Record helpers are nil-safe so callers can run without metrics.

func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.PacketsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPollAnswered(replies int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PollsAnswered.Inc()
	m.RepliesBuilt.Add(float64(replies))
	m.HandleDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordSend(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SendErrors.Inc()
		return
	}
	m.RepliesSent.Inc()
}

func (m *Metrics) RecordQueueOverflow() {
	if m == nil {
		return
	}
	m.QueueOverflows.Inc()
}

func (m *Metrics) SetOutletPower(id string, watts float64) {
	if m == nil {
		return
	}
	m.OutletPower.WithLabelValues(id).Set(watts)
}

func (m *Metrics) RecordSourceUpdate(source string) {
	if m == nil {
		return
	}
	m.SourceUpdates.WithLabelValues(source).Inc()
}
