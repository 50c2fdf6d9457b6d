// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Submission results
const (
	ResultAccepted  = "accepted"
	ResultConflict  = "conflict"
	ResultInvalid   = "validation"
	ResultNotFound  = "not_found"
	ResultForbidden = "forbidden"
	ResultError     = "error"
	ResultSent      = "sent"
)

// Metrics groups the service collectors
type Metrics struct {
	ScoreSubmissions *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	LeaderboardBuild prometheus.Histogram
	Subscribers      prometheus.Gauge
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScoreSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judgehub_score_submissions_total",
			Help: "Score submissions by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judgehub_notifications_total",
			Help: "Change notifications by result.",
		}, []string{"result"}),
		LeaderboardBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judgehub_leaderboard_build_seconds",
			Help:    "Time spent building a leaderboard.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "judgehub_subscribers",
			Help: "Open websocket subscriptions.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ScoreSubmissions, m.Notifications, m.LeaderboardBuild, m.Subscribers)
	}
	return m
}

// NewRegistry returns a registry with the Go and process collectors plus m
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// ObserveLeaderboard records the duration since start
func (m *Metrics) ObserveLeaderboard(start time.Time) {
	m.LeaderboardBuild.Observe(time.Since(start).Seconds())
}
