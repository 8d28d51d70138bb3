package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "louyass_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "louyass_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the per-IP rate limiter",
		},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	AppointmentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_appointment_transitions_total",
			Help: "Total number of appointment status changes",
		},
		[]string{"to"},
	)

	ContractsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "louyass_contracts_created_total",
			Help: "Total number of contracts signed",
		},
	)

	ContractsTerminated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "louyass_contracts_terminated_total",
			Help: "Total number of contracts terminated",
		},
	)

	PaymentsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_payments_recorded_total",
			Help: "Total number of payment records written",
		},
		[]string{"status"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_notifications_sent_total",
			Help: "Total number of notifications delivered",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_notifications_failed_total",
			Help: "Total number of notifications that could not be delivered",
		},
		[]string{"channel", "reason"},
	)

	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "louyass_notification_queue_depth",
			Help: "Number of notifications waiting to be sent",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "louyass_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	MediaUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "louyass_media_upload_bytes_total",
			Help: "Total number of media bytes stored",
		},
		[]string{"backend"},
	)
)

// Cache metrics. Labels:
//   - cache: backend name ("redis", "lru")
//   - op: failing operation for CacheErrors
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache errors",
		},
		[]string{"cache", "op"},
	)
)

// SQLite connection pool metrics, labelled by pool ("write" or "read").
var (
	SQLitePoolOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "open_connections",
			Help:      "Number of established connections",
		},
		[]string{"pool"},
	)

	SQLitePoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "in_use",
			Help:      "Number of connections currently in use",
		},
		[]string{"pool"},
	)

	SQLitePoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "idle",
			Help:      "Number of idle connections",
		},
		[]string{"pool"},
	)

	SQLitePoolMaxOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "max_open_connections",
			Help:      "Maximum number of open connections",
		},
		[]string{"pool"},
	)

	SQLitePoolWaitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "wait_count_total",
			Help:      "Total number of connections waited for",
		},
		[]string{"pool"},
	)

	SQLitePoolWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "wait_duration_seconds",
			Help:      "Cumulative time blocked waiting for a connection",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	SQLitePoolMaxIdleClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "max_idle_closed_total",
			Help:      "Total number of connections closed due to SetMaxIdleConns",
		},
		[]string{"pool"},
	)

	SQLitePoolMaxLifetimeClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "louyass",
			Subsystem: "sqlite_pool",
			Name:      "max_lifetime_closed_total",
			Help:      "Total number of connections closed due to SetConnMaxLifetime",
		},
		[]string{"pool"},
	)
)
