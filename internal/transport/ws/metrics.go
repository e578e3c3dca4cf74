package ws

import (
	"github.com/prometheus/client_golang/prometheus"

	"gemkitchen.ai/internal/protocol"
)

// kindInvalid labels ACTs whose kind could not be trusted, so client input
// never mints new series.
const kindInvalid = "invalid"

// Metrics are the session counters served on /metrics. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Sessions       prometheus.Gauge
	Matches        *prometheus.CounterVec
	MatchedCells   *prometheus.CounterVec
	Crafts         *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	Completed      *prometheus.CounterVec
	CompletionTime *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gemkitchen",
			Name:      "sessions_active",
			Help:      "Sessions with a connected client.",
		}),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemkitchen",
			Name:      "matches_total",
			Help:      "Accepted gem paths by credited currency.",
		}, []string{"currency"}),
		MatchedCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemkitchen",
			Name:      "matched_cells_total",
			Help:      "Cells cleared by accepted paths by credited currency.",
		}, []string{"currency"}),
		Crafts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemkitchen",
			Name:      "crafts_total",
			Help:      "Finished tool countdowns by tool.",
		}, []string{"tool"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemkitchen",
			Name:      "actions_total",
			Help:      "ACT messages by kind and result code.",
		}, []string{"kind", "code"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemkitchen",
			Name:      "sessions_completed_total",
			Help:      "Sessions that served their last order, by map.",
		}, []string{"map"}),
		CompletionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gemkitchen",
			Name:      "completion_time_seconds",
			Help:      "Total play time of completed sessions, by map.",
			Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
		}, []string{"map"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Matches, m.MatchedCells, m.Crafts, m.Actions, m.Completed, m.CompletionTime)
	}
	return m
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) match(currency string, cells int) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(currency).Inc()
	m.MatchedCells.WithLabelValues(currency).Add(float64(cells))
}

func (m *Metrics) craft(tool string) {
	if m != nil {
		m.Crafts.WithLabelValues(tool).Inc()
	}
}

func (m *Metrics) action(kind, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	if !protocol.IsActKind(kind) {
		kind = kindInvalid
	}
	m.Actions.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) completed(mapID string, totalTime float64) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(mapID).Inc()
	m.CompletionTime.WithLabelValues(mapID).Observe(totalTime)
}
