package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meditime"

type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	remindersFired   prometheus.Counter
	remindersRepeats prometheus.Counter
	dismissals       prometheus.Counter
	rearms           prometheus.Counter
	armed            prometheus.Gauge
	nextDoseSeconds  prometheus.Gauge

	deliveries *prometheus.CounterVec

	schedulesSaved   prometheus.Counter
	schedulesDeleted prometheus.Counter
	validationFailed prometheus.Counter
	storageErrors    *prometheus.CounterVec

	activeConnections prometheus.Gauge
	httpRequests      *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a Metrics instance on its own registry
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),

		remindersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_fired_total",
			Help: "Dose reminders fired.",
		}),
		remindersRepeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminder_repeats_total",
			Help: "Repeated alert deliveries while a reminder was not dismissed.",
		}),
		dismissals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_dismissed_total",
			Help: "Reminders dismissed by the user.",
		}),
		rearms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduler_rearms_total",
			Help: "Scheduler re-arm operations.",
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduler_armed",
			Help: "1 when a dose timer is armed.",
		}),
		nextDoseSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "next_dose_timestamp_seconds",
			Help: "Unix time of the armed dose, 0 when idle.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_deliveries_total",
			Help: "Alert deliveries by channel and result.",
		}, []string{"channel", "result"}),
		schedulesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedules_saved_total",
			Help: "Schedules committed.",
		}),
		schedulesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedules_deleted_total",
			Help: "Schedule delete operations.",
		}),
		validationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "validation_failures_total",
			Help: "Draft submissions rejected by validation.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "storage_errors_total",
			Help: "Storage failures by operation.",
		}, []string{"op"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_connections",
			Help: "Open WebSocket clients.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "API requests by route and status class.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.remindersFired,
		m.remindersRepeats,
		m.dismissals,
		m.rearms,
		m.armed,
		m.nextDoseSeconds,
		m.deliveries,
		m.schedulesSaved,
		m.schedulesDeleted,
		m.validationFailed,
		m.storageErrors,
		m.activeConnections,
		m.httpRequests,
	)
	return m
}

// Registry exposes the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) RecordFired() {
	m.remindersFired.Inc()
}

func (m *Metrics) RecordRepeat() {
	m.remindersRepeats.Inc()
}

func (m *Metrics) RecordDismissed() {
	m.dismissals.Inc()
}

// RecordArmed tracks a re-arm and the resulting target, zero when idle
func (m *Metrics) RecordArmed(at time.Time) {
	m.rearms.Inc()
	if at.IsZero() {
		m.armed.Set(0)
		m.nextDoseSeconds.Set(0)
		return
	}
	m.armed.Set(1)
	m.nextDoseSeconds.Set(float64(at.Unix()))
}

func (m *Metrics) RecordDelivery(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) RecordScheduleSaved() {
	m.schedulesSaved.Inc()
}

func (m *Metrics) RecordScheduleDeleted() {
	m.schedulesDeleted.Inc()
}

func (m *Metrics) RecordValidationFailed() {
	m.validationFailed.Inc()
}

func (m *Metrics) RecordStorageError(op string) {
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

func (m *Metrics) RecordRequest(route string, status int) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	m.httpRequests.WithLabelValues(route, class).Inc()
}
