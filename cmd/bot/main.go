package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avolkov-go/pizzeria-bot/internal/bot"
	"github.com/avolkov-go/pizzeria-bot/internal/commerce"
	"github.com/avolkov-go/pizzeria-bot/internal/database"
	"github.com/avolkov-go/pizzeria-bot/internal/flow"
	"github.com/avolkov-go/pizzeria-bot/internal/geocoder"
	"github.com/avolkov-go/pizzeria-bot/internal/health"
	"github.com/avolkov-go/pizzeria-bot/internal/idempotency"
	"github.com/avolkov-go/pizzeria-bot/internal/jobs"
	jobhandlers "github.com/avolkov-go/pizzeria-bot/internal/jobs/handlers"
	"github.com/avolkov-go/pizzeria-bot/internal/ratelimit"
	"github.com/avolkov-go/pizzeria-bot/internal/repository"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
	"github.com/avolkov-go/pizzeria-bot/pkg/graceful"
	"github.com/avolkov-go/pizzeria-bot/pkg/logger"
	"github.com/avolkov-go/pizzeria-bot/pkg/metrics"
	appredis "github.com/avolkov-go/pizzeria-bot/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg)
	slog.SetDefault(log)
	config.Watch(v, log)

	log.Info("starting pizzeria bot",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.Server.Port),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	rdb, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rdb.Close(); cerr != nil {
			log.Error("error closing redis client", slog.Any("error", cerr))
		}
	}()

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, "migrations"); err != nil {
		return err
	}

	commerceClient := commerce.New(cfg.ElasticPath, rdb, log)
	geocoderClient := geocoder.New(cfg.Geocoder)

	storage := session.NewRedisStorage(rdb.Client, log)
	locker := session.NewLocker(rdb.Client, log)
	guard := idempotency.NewRedisGuard(rdb.Client, log)
	limiter := ratelimit.NewRedisLimiter(rdb.Client, log)
	orderLog := repository.NewOrderLog(db, log)

	machine := flow.NewMachine(commerceClient, geocoderClient, cfg.Delivery, log)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	jobsManager := jobs.NewManager(redisOpt, log)
	defer func() {
		if cerr := jobsManager.Close(); cerr != nil {
			log.Error("error closing jobs client", slog.Any("error", cerr))
		}
	}()

	b, err := bot.New(cfg, log, machine, storage, locker, guard, limiter, orderLog, jobsManager)
	if err != nil {
		return err
	}

	worker := jobs.NewWorker(redisOpt, map[string]int{
		jobs.QueueDefault: 5,
		jobs.QueueLow:     1,
	}, log)
	worker.RegisterHandler(jobs.TaskTypeOrderFollowUp, jobhandlers.NewOrderFollowUpHandler(b.Telebot(), log))

	checker := health.NewChecker(log)
	checker.AddCheck("redis", health.NewRedisChecker(rdb.Client))
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))
	checker.AddCheck("commerce", commerceClient)

	collector := metrics.NewSessionCollector(storage, log, time.Minute)
	go collector.Run(ctx)

	orderStats := metrics.NewOrderStatsCollector(orderLog, log, time.Minute)
	go orderStats.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		results := checker.Check(r.Context())

		status := http.StatusOK
		for _, v := range results {
			if v != "OK" {
				status = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		for name, v := range results {
			_, _ = w.Write([]byte(name + ": " + v + "\n"))
		}
	})

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	errCh := make(chan error, 3)

	go func() {
		errCh <- httpServer.ListenAndServe(ctx)
	}()
	go func() {
		errCh <- worker.Run()
	}()
	go func() {
		b.Start()
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("component failed", slog.Any("error", err))
		}
	}

	b.Stop()
	worker.Shutdown()

	log.Info("pizzeria bot shut down")

	return nil
}
