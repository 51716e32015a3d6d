// Voxline Reaper — фоновая дочистка ресурсов после неуспешных откатов.
//
// Reaper:
//   - Слушает события pipelines.failed из RabbitMQ
//   - По cron-расписанию перечитывает rollback_history
//   - Повторяет неуспешные компенсации у внешних провайдеров
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/voxline/internal/cache"
	"github.com/shaiso/voxline/internal/config"
	"github.com/shaiso/voxline/internal/mq"
	"github.com/shaiso/voxline/internal/provision"
	"github.com/shaiso/voxline/internal/reaper"
	"github.com/shaiso/voxline/internal/repo"
	"github.com/shaiso/voxline/internal/services"
	"github.com/shaiso/voxline/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting voxline-reaper")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	agentRepo := repo.NewAgentRepo(pool)
	rollbackRepo := repo.NewRollbackRepo(pool)

	// RabbitMQ — деградация допустима: без брокера reaper работает
	// только по расписанию
	var mqConn *mq.Connection
	mqURL := cfg.RabbitURL
	if mqURL == "" {
		mqURL = mq.DefaultURL
	}

	mqConn, err = mq.NewConnection(mqURL, "voxline-reaper", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in cron-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Кэш контента нужен компенсатору базы знаний
	var contentCache cache.ContentCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		contentCache = cache.NewRedisCache(client, cfg.ContentCacheTTL)
	}

	// Те же компенсаторы, что и у API: reaper повторяет их же работу
	compensators := provision.NewCompensators(
		services.NewHTTPAgentDirectory(cfg.VoiceAPIURL, cfg.VoiceAPIKey),
		services.NewHTTPPhoneProvider(cfg.PhoneAPIURL, cfg.PhoneAPIKey),
		agentRepo,
		contentCache,
	)

	r := reaper.New(reaper.Config{
		History:      rollbackRepo,
		Compensators: compensators,
		Conn:         mqConn,
		Schedule:     cfg.ReaperSchedule,
		Logger:       logger,
	})

	if err := r.Start(ctx); err != nil {
		logger.Error("failed to start reaper", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8084"
	if v := os.Getenv("REAPER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	r.Stop()
	logger.Info("voxline-reaper stopped")
}
