package metrics

import (
	"database/sql"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "purifier_"

var (
	registerOnce sync.Once

	commandsIssued  prometheus.Counter
	commandResults  *prometheus.CounterVec
	commandRetries  prometheus.Counter
	telemetryTotal  *prometheus.CounterVec
	acksUnmatched   prometheus.Counter
	overrideActive  prometheus.Gauge
	schedulesArmed  prometheus.Gauge
)

// Init registers controller metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		commandsIssued = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total issued commands",
			},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total terminal command outcomes by status",
			},
			[]string{"status"},
		)
		commandRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_retries_total",
				Help: "Total command republish attempts",
			},
		)
		telemetryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_messages_total",
				Help: "Total inbound telemetry messages by result",
			},
			[]string{"result"},
		)
		acksUnmatched = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "acks_unmatched_total",
				Help: "Acks dropped because no ledger record matched",
			},
		)
		overrideActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "override_sessions_active",
				Help: "Override sessions awaiting restoration",
			},
		)
		schedulesArmed = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "schedules_armed",
				Help: "Schedules with armed window jobs",
			},
		)

		prometheus.MustRegister(commandsIssued, commandResults, commandRetries,
			telemetryTotal, acksUnmatched, overrideActive, schedulesArmed)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "commands_in_flight",
			Help: "Ledger records still pending or sent",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM commands WHERE status IN ('pending', 'sent')")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "devices_online",
			Help: "Devices currently marked online",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM device_snapshots WHERE online")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// IncCommandIssued counts one issued command.
func IncCommandIssued() {
	if commandsIssued != nil {
		commandsIssued.Inc()
	}
}

// IncCommandResult counts one terminal outcome.
func IncCommandResult(status string) {
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// IncCommandRetry counts one republish.
func IncCommandRetry() {
	if commandRetries != nil {
		commandRetries.Inc()
	}
}

// IncTelemetry counts one inbound telemetry message by result.
func IncTelemetry(result string) {
	if telemetryTotal != nil {
		telemetryTotal.WithLabelValues(result).Inc()
	}
}

// IncUnmatchedAck counts one dropped ack.
func IncUnmatchedAck() {
	if acksUnmatched != nil {
		acksUnmatched.Inc()
	}
}

// SetOverrideSessions reports the number of pending restorations.
func SetOverrideSessions(count int) {
	if overrideActive != nil {
		overrideActive.Set(float64(count))
	}
}

// SetSchedulesArmed reports the number of armed schedules.
func SetSchedulesArmed(count int) {
	if schedulesArmed != nil {
		schedulesArmed.Set(float64(count))
	}
}
