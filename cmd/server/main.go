package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"custodia/internal/audit/relay"
	"custodia/internal/engine"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/redisclient"
	"custodia/internal/retention"
	transporthttp "custodia/internal/transport/http"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	redisCli, err := redisclient.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	if redisCli != nil {
		defer redisCli.Close()
	}

	eng, err := engine.Build(cfg, db, redisCli, log, metrics.New())
	if err != nil {
		return err
	}
	scheduler := retention.NewScheduler(eng.Retention, log, cfg.RetentionSweepInterval)

	checks := map[string]transporthttp.HealthChecker{
		"postgres": db.PingContext,
	}
	if redisCli != nil {
		checks["redis"] = redisCli.Health
	}
	server := httpserver.New(cfg.Addr, transporthttp.NewRouter(checks))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("ops server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		err := scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := relay.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()

		auditRelay := relay.New(eng.AuditDB, publisher, log)
		group.Go(func() error {
			err := auditRelay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		log.Warn("kafka not configured; audit outbox will accumulate unpublished rows")
	}

	return group.Wait()
}
