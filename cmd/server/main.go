package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"fooocus-orchestrator/internal/api"
	"fooocus-orchestrator/internal/auth"
	"fooocus-orchestrator/internal/catalog"
	"fooocus-orchestrator/internal/config"
	"fooocus-orchestrator/internal/configeditor"
	"fooocus-orchestrator/internal/coordinator"
	"fooocus-orchestrator/internal/history"
	"fooocus-orchestrator/internal/logger"
	"fooocus-orchestrator/internal/monitoring"
	"fooocus-orchestrator/internal/progressbus"
	"fooocus-orchestrator/internal/scheduler"
	"fooocus-orchestrator/internal/tracing"
	"fooocus-orchestrator/internal/worker"
	"fooocus-orchestrator/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting GPU orchestration backend")

	metrics := monitoring.NewMetrics(zapLogger)
	metrics.SetGPUsConfigured(float64(len(cfg.GPUs.GPUs)))

	var tracingManager *tracing.TracingManager
	if cfg.Tracing.Enabled {
		tracingManager, err = tracing.NewTracingManager(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, zapLogger)
		if err != nil {
			zapLogger.Error("failed to initialize tracing", zap.Error(err))
		} else {
			zapLogger.Info("tracing initialized", zap.String("service", cfg.Tracing.ServiceName))
		}
	}

	var rateLimiter *auth.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("rate limit redis unreachable, continuing without rate limiting", zap.Error(err))
		} else {
			rateLimiter = auth.NewRateLimiter(redisClient, zapLogger)
			zapLogger.Info("rate limiting initialized")
		}
	}

	sched := scheduler.New(cfg.GPUs)

	supervisor := worker.NewSupervisor(worker.Config{
		BinaryPath:          cfg.Worker.BinaryPath,
		HealthProbeBudget:   cfg.Worker.HealthProbeBudget,
		HealthProbeCooldown: cfg.Worker.HealthProbeCooldown,
		RPCTimeout:          cfg.Worker.RPCTimeout,
		SubTaskWallClockCap: cfg.Worker.SubTaskWallClockCap,
		AuditEnabled:        cfg.Audit.Enabled,
	}, zapLogger)

	// Worker processes are spawned with exec.CommandContext, so the
	// context given to StartAll has to live as long as the server.
	if err := supervisor.StartAll(context.Background(), sched.Slots()); err != nil {
		zapLogger.Fatal("failed to start worker supervisor", zap.Error(err))
	}
	defer supervisor.ShutdownAll()

	bus := progressbus.New(zapLogger)

	coord := coordinator.New(sched, func(device int) (coordinator.WorkerHandle, bool) {
		return supervisor.Get(device)
	}, bus, metrics, cfg.Worker.SubTaskWallClockCap, cfg.Audit.Enabled, tracingManager, zapLogger)

	catalogReader := catalog.NewReader(cfg.Catalog, zapLogger)
	historyReader := history.NewReader(cfg.History, zapLogger)
	editor := configeditor.NewEditor(cfg.Editor.ConfigPath, cfg.Editor.SchemaPath)

	healthChecker := monitoring.NewHealthChecker(zapLogger)
	healthChecker.AddCheck("worker_supervisor", &supervisorHealthCheck{supervisor: supervisor, slots: sched.Slots()})
	healthChecker.AddCheck("history_sidecar_db", &historyHealthCheck{path: cfg.History.SidecarDBPath})

	handler := api.NewHandler(coord, sched, catalogReader, historyReader, editor, healthChecker, bus, metrics, cfg.History, zapLogger)
	router := api.NewRouter(handler, metrics, tracingManager, rateLimiter, cfg, zapLogger)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if cfg.Metrics.Enabled {
			zapLogger.Info("starting metrics server", zap.String("addr", cfg.GetMetricsAddr()))
			if err := metrics.StartServer(cfg.GetMetricsAddr()); err != nil && err != http.ErrServerClosed {
				zapLogger.Error("metrics server failed", zap.Error(err))
			}
		}
	}()

	go func() {
		zapLogger.Info("starting HTTP server", zap.String("addr", cfg.GetServerAddr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := metrics.Stop(ctx); err != nil {
		zapLogger.Error("failed to shut down metrics server", zap.Error(err))
	}

	zapLogger.Info("shutdown complete")
}

// supervisorHealthCheck reports unhealthy if any configured slot's
// worker process has become unusable.
type supervisorHealthCheck struct {
	supervisor *worker.Supervisor
	slots      []types.GPUSlot
}

func (h *supervisorHealthCheck) HealthCheck(ctx context.Context) error {
	for _, slot := range h.slots {
		w, ok := h.supervisor.Get(slot.Device)
		if !ok {
			return fmt.Errorf("no worker registered for device %d", slot.Device)
		}
		if w.IsUnusable() {
			return fmt.Errorf("worker for device %d is unusable", slot.Device)
		}
	}
	return nil
}

// historyHealthCheck only fails when the sidecar file exists but can't
// be opened; a missing sidecar is the normal degraded-but-fine case
// history.Reader already tolerates, not an outage.
type historyHealthCheck struct {
	path string
}

func (h *historyHealthCheck) HealthCheck(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	if _, err := os.Stat(h.path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite3", h.path)
	if err != nil {
		return fmt.Errorf("history sidecar db unreadable: %w", err)
	}
	defer db.Close()
	return db.PingContext(ctx)
}
