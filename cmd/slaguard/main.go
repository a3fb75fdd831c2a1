package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/splax/slaguard/internal/app/migrate"
	httpx "github.com/splax/slaguard/internal/http"
	"github.com/splax/slaguard/internal/repository/postgres"
	"github.com/splax/slaguard/internal/scheduler"
	"github.com/splax/slaguard/internal/service/alerting"
	"github.com/splax/slaguard/internal/service/dispatch"
	"github.com/splax/slaguard/internal/service/sla"
	"github.com/splax/slaguard/internal/ws"
	"github.com/splax/slaguard/pkg/config"
	"github.com/splax/slaguard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadEngineConfig(*configPath)
	if err != nil {
		logger.New("slaguard", slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New("slaguard", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	defer hub.Stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, dispatch is log-only and rate limits are per process", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var publisher dispatch.Publisher
	limiter := httpx.NewMemoryRateLimiter()
	if rdb != nil {
		publisher = dispatch.NewRedisPublisher(rdb)
		limiter = httpx.NewRedisRateLimiter(rdb, log)
	}
	dispatcher := dispatch.New(publisher, dispatch.Options{
		EscalationChannel:   cfg.EscalationChannel,
		NotificationChannel: cfg.NotificationChannel,
		Timeout:             cfg.DispatchTimeout,
		BreakerTimeout:      cfg.BreakerTimeout,
	}, log)

	generator := sla.NewGenerator(repo, repo, repo, repo, cfg.SnapshotConcurrency, log)
	registry := sla.NewRegistry(repo, sla.LivePolicy(cfg.LiveDefinitionPolicy), log)
	reporter := sla.NewReporter(repo, repo, log)

	dedup, err := alerting.DedupStrategyFor(cfg.DedupMode)
	if err != nil {
		log.Error("invalid dedup mode", "error", err)
		os.Exit(1)
	}
	rules := alerting.NewRuleStore(repo, nil, log)
	evaluator := alerting.NewEvaluator(rules, repo, nil, log)
	gate := alerting.NewGate(repo, repo, alerting.GateOptions{
		Dedup:      dedup,
		Escalator:  dispatcher,
		Notifier:   dispatch.Fanout{dispatcher, dispatch.NewHubNotifier(hub, log)},
		Recipients: cfg.NotifyRecipients,
	}, log)
	engine := alerting.NewEngine(evaluator, gate, log)

	sched := scheduler.New(engine, generator, scheduler.Config{
		EvaluationInterval: cfg.EvaluationInterval,
		EvaluationTimeout:  cfg.EvaluationTimeout,
		SnapshotInterval:   cfg.SnapshotInterval,
		SnapshotTimeout:    cfg.SnapshotTimeout,
		BackfillDays:       cfg.SnapshotBackfillDays,
	}, log)
	go sched.RunEvaluations(ctx)
	go sched.RunSnapshots(ctx)

	router := httpx.NewRouter(log, httpx.Services{
		Evaluations: engine,
		Rules:       rules,
		Definitions: registry,
		Snapshots:   generator,
		History:     repo,
		Reports:     reporter,
		Hub:         hub,
	}, httpx.Options{
		AdminToken:         cfg.AdminToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Limiter:            limiter,
		TrustedProxies:     cfg.TrustedProxies,
		DBHealth:           pool.Ping,
	})
	defer router.Close()

	if cfg.AdminToken == "" {
		log.Warn("admin token not configured, admin routes will refuse requests")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("slaguard starting", "addr", cfg.Addr, "env", cfg.Environment, "dedup", cfg.DedupMode, "live_policy", cfg.LiveDefinitionPolicy)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("slaguard stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
