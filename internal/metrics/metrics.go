// Package metrics holds the Prometheus instruments for the match and
// messaging engine. Services take a *Metrics and call the helpers below; a
// nil *Metrics is valid and records nothing, which keeps unit tests free of
// registry setup.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MatchesCreated         prometheus.Counter
	MatchTransitions       *prometheus.CounterVec
	FeedbackAdded          prometheus.Counter
	ConversationsCreated   prometheus.Counter
	MessagesSent           prometheus.Counter
	MessagesMarkedRead     prometheus.Counter
	ReportsFiled           *prometheus.CounterVec
	ReportStatusChanges    *prometheus.CounterVec
	StatisticsRefreshes    *prometheus.CounterVec
	StatisticsTotalUsers   prometheus.Gauge
	StatisticsTotalMatches prometheus.Gauge
	StatisticsSuccessful   prometheus.Gauge
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New registers every instrument on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MatchesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "cofounder_matches_created_total",
			Help: "Total number of matches proposed",
		}),
		MatchTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cofounder_match_transitions_total",
			Help: "Match status transitions by resulting status",
		}, []string{"status"}),
		FeedbackAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "cofounder_match_feedback_total",
			Help: "Total number of feedback entries appended to matches",
		}),
		ConversationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "cofounder_conversations_created_total",
			Help: "Total number of conversations created (find-or-create misses)",
		}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "cofounder_messages_sent_total",
			Help: "Total number of messages appended",
		}),
		MessagesMarkedRead: f.NewCounter(prometheus.CounterOpts{
			Name: "cofounder_messages_marked_read_total",
			Help: "Total number of messages flipped to read",
		}),
		ReportsFiled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cofounder_reports_filed_total",
			Help: "User reports filed by reason",
		}, []string{"reason"}),
		ReportStatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cofounder_report_status_changes_total",
			Help: "Report moderation status changes by resulting status",
		}, []string{"status"}),
		StatisticsRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cofounder_statistics_refreshes_total",
			Help: "Statistics recomputations by result",
		}, []string{"result"}),
		StatisticsTotalUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "cofounder_statistics_total_users",
			Help: "totalUsers in the last computed snapshot",
		}),
		StatisticsTotalMatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "cofounder_statistics_total_matches",
			Help: "totalMatches in the last computed snapshot",
		}),
		StatisticsSuccessful: f.NewGauge(prometheus.GaugeOpts{
			Name: "cofounder_statistics_successful_matches",
			Help: "successfulMatches in the last computed snapshot",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cofounder_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route pattern and status code",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementMatchesCreated() {
	if m == nil {
		return
	}
	m.MatchesCreated.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	if m == nil {
		return
	}
	m.MatchTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementFeedback() {
	if m == nil {
		return
	}
	m.FeedbackAdded.Inc()
}

func (m *Metrics) IncrementConversationsCreated() {
	if m == nil {
		return
	}
	m.ConversationsCreated.Inc()
}

func (m *Metrics) IncrementMessagesSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) AddMessagesMarkedRead(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesMarkedRead.Add(float64(n))
}

func (m *Metrics) IncrementReportsFiled(reason string) {
	if m == nil {
		return
	}
	m.ReportsFiled.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementReportStatusChange(status string) {
	if m == nil {
		return
	}
	m.ReportStatusChanges.WithLabelValues(status).Inc()
}

// RecordRefresh counts one recompute and, on success, publishes the snapshot
// counters as gauges.
func (m *Metrics) RecordRefresh(err error, totalUsers, totalMatches, successful int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.StatisticsRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.StatisticsRefreshes.WithLabelValues("ok").Inc()
	m.StatisticsTotalUsers.Set(float64(totalUsers))
	m.StatisticsTotalMatches.Set(float64(totalMatches))
	m.StatisticsSuccessful.Set(float64(successful))
}

// ObserveRequest records one HTTP request. route should be the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.
		WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}
