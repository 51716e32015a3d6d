// Voxline API — сервер провижининга голосовых агентов.
//
// API:
//   - Принимает заявки на создание агентов и запускает пайплайн
//     (синхронно или в фоне)
//   - Отдаёт состояние активных и завершённых запусков
//   - Отдаёт записи агентов и историю откатов
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/voxline/internal/api"
	"github.com/shaiso/voxline/internal/cache"
	"github.com/shaiso/voxline/internal/config"
	"github.com/shaiso/voxline/internal/mq"
	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/provision"
	"github.com/shaiso/voxline/internal/repo"
	"github.com/shaiso/voxline/internal/rollback"
	"github.com/shaiso/voxline/internal/services"
	"github.com/shaiso/voxline/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting voxline-api")

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

	// Создаём репозитории
	agentRepo := repo.NewAgentRepo(pool)
	pipelineRepo := repo.NewPipelineRepo(pool)
	rollbackRepo := repo.NewRollbackRepo(pool)

	// RabbitMQ — деградация допустима: без брокера события
	// не публикуются, пайплайн работает
	var publisher *mq.Publisher
	mqURL := cfg.RabbitURL
	if mqURL == "" {
		mqURL = mq.DefaultURL
	}

	mqConn, err := mq.NewConnection(mqURL, "voxline-api", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events disabled", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Кэш контента: Redis если сконфигурирован, иначе процессный
	var contentCache cache.ContentCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		contentCache = cache.NewRedisCache(client, cfg.ContentCacheTTL)
		logger.Info("content cache: redis", "addr", cfg.RedisAddr)
	} else {
		contentCache = cache.NewMemoryCache(cfg.ContentCacheTTL)
		logger.Info("content cache: in-memory")
	}

	// Внешние провайдеры
	directory := services.NewHTTPAgentDirectory(cfg.VoiceAPIURL, cfg.VoiceAPIKey)
	phones := services.NewHTTPPhoneProvider(cfg.PhoneAPIURL, cfg.PhoneAPIKey)

	// LLM-извлечение опционально: без ключа работает rule-based
	var llm services.Extractor
	if cfg.AnthropicAPIKey != "" {
		llm = services.NewLLMExtractor(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
		logger.Info("llm extraction enabled", "model", cfg.AnthropicModel)
	}

	stages := provision.NewStages(provision.StagesConfig{
		LLM:            llm,
		Directory:      directory,
		Phones:         phones,
		Cache:          contentCache,
		Agents:         agentRepo,
		WebhookBaseURL: cfg.WebhookBaseURL,
		MaxPages:       cfg.CrawlMaxPages,
		Logger:         logger,
	})

	timing := pipeline.DefaultTiming()
	timing.TotalBudget = cfg.PipelineBudget

	coordinator := pipeline.New(pipeline.Config{
		Timing: timing,
		Logger: logger,
	})

	rollbacks := rollback.NewManager(rollback.Config{
		Compensators: provision.NewCompensators(directory, phones, agentRepo, contentCache),
		History:      rollbackRepo,
		TotalBudget:  cfg.PipelineBudget,
		Logger:       logger,
	})

	provCfg := provision.Config{
		Coordinator: coordinator,
		Rollbacks:   rollbacks,
		Stages:      stages,
		Runs:        pipelineRepo,
		Logger:      logger,
	}
	if publisher != nil {
		provCfg.Events = publisher
	}
	provisioner := provision.New(provCfg)

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Provisioner:  provisioner,
		Coordinator:  coordinator,
		AgentRepo:    agentRepo,
		PipelineRepo: pipelineRepo,
		RollbackRepo: rollbackRepo,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("voxline-api stopped")
}
