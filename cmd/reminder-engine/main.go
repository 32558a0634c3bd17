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

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"habit-tracker/internal/common/config"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/observability"
	"habit-tracker/internal/delivery/offline"
	"habit-tracker/internal/delivery/push"
	"habit-tracker/internal/scheduler"

	dr "habit-tracker/internal/workers/reminder/dispatch-reminders"
	pr "habit-tracker/internal/workers/reminder/purge-reminders"
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
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{"service": cfg.App.Name})

	zapLog.Info("Starting reminder engine...",
		zap.String("driver", cfg.Database.Driver),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	clk := clock.New()

	st, err := openStorage(ctx, cfg, clk, zapLog, log)
	if err != nil {
		zapLog.Fatal("storage initialization failed", zap.Error(err))
	}
	defer st.Close()

	queueOpts := []offline.Option{}
	notifier, err := newOutOfBandNotifier(ctx, cfg, st.directory, log)
	if err != nil {
		zapLog.Fatal("out-of-band notifier initialization failed", zap.Error(err))
	}
	if notifier != nil {
		queueOpts = append(queueOpts, offline.WithNotifier(notifier))
	}
	queue := offline.NewQueue(st.inbox, clk, log, queueOpts...)

	hub := push.NewHub(push.NewRegistry(), queue, push.Config{
		PingInterval:   config.GetDuration(cfg.Delivery.PingInterval),
		WriteTimeout:   config.GetDuration(cfg.Delivery.WriteTimeout),
		ReadLimit:      cfg.Delivery.ReadLimit,
		AllowedOrigins: cfg.Delivery.AllowedOrigins,
		DrainTimeout:   push.DefaultConfig().DrainTimeout,
	}, log)

	runnerOpts := []scheduler.Option{scheduler.WithObservability(obs)}
	if cfg.Scheduler.LeaseEnabled && st.redis != nil {
		runnerOpts = append(runnerOpts, scheduler.WithLease(scheduler.NewRedisLease(
			st.redis.Client,
			cfg.Scheduler.LeaseKeyPrefix,
			config.GetDuration(cfg.Scheduler.LeaseTTL),
			log,
		)))
		zapLog.Info("Scheduler lease enabled", zap.String("prefix", cfg.Scheduler.LeaseKeyPrefix))
	}
	runner := scheduler.NewRunner(log, runnerOpts...)

	if config.IsWorkerEnabled(cfg, dr.TaskType) {
		dcfg := dr.LoadConfig()
		dcfg.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, dr.TaskType).Timeout)
		handler := dr.NewHandler(dcfg, st.reminders, st.registry, hub, queue, clk, log)
		if err := runner.AddJob(dr.TaskType, cfg.Scheduler.TickSpec, dcfg.Timeout, handler.Run); err != nil {
			zapLog.Fatal("failed to schedule job", zap.String("job", dr.TaskType), zap.Error(err))
		}
		zapLog.Info("job scheduled", zap.String("job", dr.TaskType), zap.String("spec", cfg.Scheduler.TickSpec))
	} else {
		zapLog.Info("job disabled", zap.String("job", dr.TaskType))
	}

	if config.IsWorkerEnabled(cfg, pr.TaskType) {
		pcfg := pr.LoadConfig(cfg.Scheduler.RetentionDays)
		pcfg.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, pr.TaskType).Timeout)
		handler := pr.NewHandler(pcfg, st.reminders, clk, log)
		if err := runner.AddJob(pr.TaskType, cfg.Scheduler.SweepSpec, pcfg.Timeout, handler.Run); err != nil {
			zapLog.Fatal("failed to schedule job", zap.String("job", pr.TaskType), zap.Error(err))
		}
		zapLog.Info("job scheduled", zap.String("job", pr.TaskType), zap.String("spec", cfg.Scheduler.SweepSpec))
	} else {
		zapLog.Info("job disabled", zap.String("job", pr.TaskType))
	}

	runner.Start()

	server := &http.Server{
		Addr:              cfg.App.HTTPAddress,
		Handler:           newMux(st, hub, runner),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		zapLog.Error("Error stopping scheduler", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Reminder engine stopped gracefully")
}

func newMux(st *storage, hub *push.Hub, runner *scheduler.Runner) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		next := map[string]string{}
		for _, job := range []string{dr.TaskType, pr.TaskType} {
			if t := runner.Next(job); !t.IsZero() {
				next[job] = t.Format(time.RFC3339)
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"delivery": hub.Stats(),
			"nextRuns": next,
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", hub)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
