// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReminderTickOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_tick_reminders_total",
			Help: "Reminders processed by the dispatch tick, by outcome",
		},
		[]string{"outcome"},
	)

	ReminderTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "reminder_tick_duration_seconds",
			Help: "Duration of one dispatch tick in seconds",
		},
	)

	SchedulerRunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_ticks_skipped_total",
			Help: "Scheduled job runs skipped because a previous run or another replica was busy",
		},
		[]string{"job"},
	)

	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_events_total",
			Help: "Events written to push connections, by event and result",
		},
		[]string{"event", "result"},
	)

	PushConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_connected_users",
			Help: "Number of users with a registered push connection",
		},
	)

	OfflineNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_notifications_total",
			Help: "Offline queue activity, by action",
		},
		[]string{"action"},
	)

	ReminderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_errors_total",
			Help: "Errors handled by operation and error code",
		},
		[]string{"operation", "error_code"},
	)

	RetentionPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_retention_purged_total",
			Help: "Terminal reminders deleted by the retention sweep",
		},
	)
)
