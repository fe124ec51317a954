// Package metrics exports notification run statistics to Prometheus: per
// channel attempt counts and durations, and the result of each scheduled run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/albapepper/stock-notifier/internal/notifications"
)

// Recorder exports per-channel run results. It implements
// notifications.Observer.
type Recorder struct {
	Attempts        *prometheus.CounterVec
	ChannelDuration *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_notifier_attempts_total",
				Help: "Users processed per channel, by outcome (sent, failed, skipped, log_failure)",
			},
			[]string{"channel", "outcome"},
		),
		ChannelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stock_notifier_channel_duration_seconds",
				Help:    "Wall time of one channel within a run",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"channel"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_notifier_runs_total",
				Help: "Scheduled runs by result (ok, error, locked)",
			},
			[]string{"result"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stock_notifier_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
	reg.MustRegister(r.Attempts, r.ChannelDuration, r.Runs, r.LastRun)
	return r
}

// ObserveChannel adds one channel's statistics.
func (r *Recorder) ObserveChannel(ch notifications.Channel, stats notifications.Stats, elapsed time.Duration) {
	c := string(ch)
	r.Attempts.WithLabelValues(c, "sent").Add(float64(stats.Sent))
	r.Attempts.WithLabelValues(c, "failed").Add(float64(stats.Failed))
	r.Attempts.WithLabelValues(c, "skipped").Add(float64(stats.Skipped))
	r.Attempts.WithLabelValues(c, "log_failure").Add(float64(stats.LogFailures))
	r.ChannelDuration.WithLabelValues(c).Observe(elapsed.Seconds())
}

// ObserveRun records the end of a run.
func (r *Recorder) ObserveRun(result string, finished time.Time) {
	r.Runs.WithLabelValues(result).Inc()
	r.LastRun.Set(float64(finished.Unix()))
}
