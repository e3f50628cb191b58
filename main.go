package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	commandsapp "purifier-cloud/internal/commands/application"
	commandsrepo "purifier-cloud/internal/commands/infrastructure/postgres"
	commandsinterfaces "purifier-cloud/internal/commands/interfaces"
	commandshttp "purifier-cloud/internal/commands/interfaces/http"
	devicesrepo "purifier-cloud/internal/devices/infrastructure/postgres"
	deviceshttp "purifier-cloud/internal/devices/interfaces/http"
	"purifier-cloud/internal/exports"
	"purifier-cloud/internal/observability/metrics"
	overridesapp "purifier-cloud/internal/overrides/application"
	overrideshttp "purifier-cloud/internal/overrides/interfaces/http"
	schedulesapp "purifier-cloud/internal/schedules/application"
	schedulesrepo "purifier-cloud/internal/schedules/infrastructure/postgres"
	scheduleshttp "purifier-cloud/internal/schedules/interfaces/http"
	"purifier-cloud/internal/scheduling"
	telemetryrepo "purifier-cloud/internal/telemetry/infrastructure/postgres"
	telemetryinterfaces "purifier-cloud/internal/telemetry/interfaces"
	"purifier-cloud/internal/transport"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	broker, err := transport.ConnectNATS(cfg.NATSURL, "purifier-cloud")
	if err != nil {
		logger.Fatalf("nats connect error: %v", err)
	}
	defer broker.Close()

	engineCfg, err := commandsapp.LoadEngineConfig()
	if err != nil {
		logger.Fatalf("engine config error: %v", err)
	}

	timers := scheduling.NewTimerService()
	defer timers.Stop()

	commandRepo := commandsrepo.NewCommandRepository(db)
	snapshotRepo := devicesrepo.NewSnapshotRepository(db)
	telemetryRepo := telemetryrepo.NewRepository(db)
	scheduleRepo := schedulesrepo.NewRepository(db)

	dispatcher, err := commandsapp.NewDispatcher(commandRepo, broker, logger)
	if err != nil {
		logger.Fatalf("dispatcher error: %v", err)
	}
	supervisor, err := commandsapp.NewRetrySupervisor(commandRepo, dispatcher, timers, engineCfg, logger)
	if err != nil {
		logger.Fatalf("retry supervisor error: %v", err)
	}
	dispatcher.AttachRetrySupervisor(supervisor)

	ackConsumer, err := commandsinterfaces.NewAckConsumer(commandRepo, snapshotRepo, supervisor, logger)
	if err != nil {
		logger.Fatalf("ack consumer error: %v", err)
	}
	ackSub, err := ackConsumer.Start(broker)
	if err != nil {
		logger.Fatalf("ack subscribe error: %v", err)
	}
	defer ackSub.Unsubscribe()

	telemetryConsumer, err := telemetryinterfaces.NewConsumer(telemetryRepo, snapshotRepo, logger)
	if err != nil {
		logger.Fatalf("telemetry consumer error: %v", err)
	}
	telemetrySub, err := telemetryConsumer.Start(broker)
	if err != nil {
		logger.Fatalf("telemetry subscribe error: %v", err)
	}
	defer telemetrySub.Unsubscribe()

	scheduler, err := schedulesapp.NewWindowScheduler(scheduleRepo, dispatcher, timers, logger)
	if err != nil {
		logger.Fatalf("window scheduler error: %v", err)
	}
	overrideController, err := overridesapp.NewController(snapshotRepo, dispatcher, timers, logger)
	if err != nil {
		logger.Fatalf("override controller error: %v", err)
	}

	// Boot recovery: re-arm schedule jobs and resume or fail commands
	// left in flight by the previous process.
	if err := scheduler.Rearm(context.Background()); err != nil {
		logger.Fatalf("schedule rearm error: %v", err)
	}
	if err := supervisor.RecoverIncomplete(context.Background()); err != nil {
		logger.Fatalf("command recovery error: %v", err)
	}

	commandHandler, err := commandshttp.NewHandler(dispatcher)
	if err != nil {
		logger.Fatalf("command handler error: %v", err)
	}
	overrideHandler, err := overrideshttp.NewHandler(overrideController)
	if err != nil {
		logger.Fatalf("override handler error: %v", err)
	}
	scheduleHandler, err := scheduleshttp.NewHandler(scheduler)
	if err != nil {
		logger.Fatalf("schedule handler error: %v", err)
	}
	deviceHandler, err := deviceshttp.NewHandler(snapshotRepo, telemetryRepo)
	if err != nil {
		logger.Fatalf("device handler error: %v", err)
	}
	exportHandler, err := exports.NewHandler(snapshotRepo, telemetryRepo)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/commands", commandHandler)
	mux.Handle("/api/v1/commands/", commandHandler)
	mux.Handle("/api/v1/overrides", overrideHandler)
	mux.Handle("/api/v1/schedules", scheduleHandler)
	mux.Handle("/api/v1/schedules/", scheduleHandler)
	mux.Handle("/api/v1/devices", deviceHandler)
	mux.Handle("/api/v1/devices/", deviceHandler)
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	NATSURL     string
	HTTPAddr    string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		NATSURL:     getenvDefault("NATS_URL", "nats://127.0.0.1:4222"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
