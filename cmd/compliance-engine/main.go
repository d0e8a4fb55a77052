// cmd/compliance-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"compliance-engine/internal/common/config"
	"compliance-engine/internal/common/database"
	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/common/observability"
	"compliance-engine/internal/compliance"
	"compliance-engine/internal/dispatch"
	"compliance-engine/internal/engine"
	"compliance-engine/internal/ledger"
	"compliance-engine/internal/mail"
	"compliance-engine/internal/models"
	"compliance-engine/internal/queue"
	"compliance-engine/internal/scheduler"
	"compliance-engine/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting compliance engine...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := ledger.Migrate(ctx, pg.GetDB()); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Notification schema migrated")
	}

	// --- Init Redis with retry, only when it backs the queue ---
	var (
		rdb redis.Cmdable
		rc  *database.RedisClient
	)
	if cfg.Queue.Backend == config.QueueBackendRedis {
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		rdb = rc.GetClient()
		zapLog.Info("Redis connected successfully")
	}

	q, err := queue.New(cfg.Queue, rdb, pg.GetDB())
	if err != nil {
		zapLog.Fatal("failed to create dispatch queue", zap.Error(err))
	}

	// --- Delivery pipeline ---
	transport, err := mail.New(ctx, cfg.Mail, log)
	if err != nil {
		zapLog.Fatal("failed to create mail transport", zap.Error(err))
	}

	var reg *registry.TemplateRegistry
	if cfg.Mail.TemplateRegistry != "" {
		reg, err = registry.LoadRegistry(cfg.Mail.TemplateRegistry)
		if err != nil {
			zapLog.Fatal("failed to load template registry", zap.Error(err))
		}
	}
	renderer, err := dispatch.NewRenderer(reg)
	if err != nil {
		zapLog.Fatal("failed to compile templates", zap.Error(err))
	}

	notifications := ledger.New(ledger.NewPostgresStore(pg.GetDB()), log)
	dispatcher := dispatch.New(q, notifications, dispatch.NewPostgresDirectory(pg.GetDB()), transport, renderer, log,
		dispatch.WithBatchSize(cfg.Queue.BatchSize),
		dispatch.WithSendTimeout(config.GetDuration(cfg.Mail.Timeout)),
	)

	scanner := compliance.NewScanner(
		compliance.NewPostgresAllocations(pg.GetDB()),
		compliance.NewPostgresRecords(pg.GetDB()),
		notifications,
		dispatcher,
		log,
		compliance.WithGraceWeeks(cfg.Compliance.GraceWeeks),
	)

	sched := scheduler.New(scanner, dispatcher, scheduler.Config{
		SweepInterval: config.GetDuration(cfg.Scheduler.SweepInterval),
		DrainInterval: config.GetDuration(cfg.Scheduler.DrainInterval),
		TickTimeout:   config.GetDuration(cfg.Scheduler.TickTimeout),
		RunOnStart:    cfg.Scheduler.RunOnStart,
	}, log, obs)

	eng := engine.New(notifications, sched, dispatcher, log)

	sched.Start()
	zapLog.Info("Scheduler started",
		zap.String("queueBackend", cfg.Queue.Backend),
		zap.String("mailTransport", transport.Name()),
	)

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil || !sched.IsRunning() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		if rc != nil {
			if err := rc.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "redis": err.Error()})
				return
			}
		}
		depth, _ := q.Len(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ready",
			"queueDepth": depth,
			"time":       time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Admin Server (behind the auth proxy) ---
	adminSrv := &http.Server{Addr: cfg.Server.AdminAddress, Handler: adminMux(eng)}
	go func() {
		zapLog.Info("Admin server listening", zap.String("address", cfg.Server.AdminAddress))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Admin server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		zapLog.Warn("In-flight ticks did not finish before shutdown deadline")
	}

	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping admin server", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	zapLog.Info("Compliance engine stopped gracefully")
}

// adminMux serves operator endpoints on the admin listener. The identity
// headers are trusted as-is, so the listener must only be reachable through
// the auth proxy that sets them.
func adminMux(eng *engine.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/sweep", sweepHandler(eng))
	return mux
}

// sweepHandler runs a sweep on behalf of the manager named in the identity
// headers set by the upstream auth proxy.
func sweepHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		caller := engine.Caller{
			RecipientID:   r.Header.Get("X-Recipient-Id"),
			RecipientType: models.RecipientType(r.Header.Get("X-Recipient-Type")),
		}
		result, err := eng.TriggerComplianceSweep(r.Context(), caller)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.IsCode(err, errors.ErrCodePermissionDenied) {
				status = http.StatusForbidden
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
