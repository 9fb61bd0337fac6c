// Package main 训练队列 API 服务入口（api-server）
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fastgpt-training/internal/application/billing"
	"fastgpt-training/internal/application/trainer"
	"fastgpt-training/internal/config"
	"fastgpt-training/internal/infrastructure/llm"
	"fastgpt-training/internal/infrastructure/persistence/milvus"
	"fastgpt-training/internal/infrastructure/persistence/postgres"
	"fastgpt-training/internal/infrastructure/persistence/redis"
	"fastgpt-training/internal/interfaces/http/handler"
	"fastgpt-training/internal/interfaces/http/router"
	"fastgpt-training/pkg/logger"
	"fastgpt-training/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-server",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	if err := pgClient.AutoMigrate(); err != nil {
		logger.Fatal(ctx, "failed to migrate database", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Milvus 仅用于就绪探针，连接失败不阻塞启动
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus unavailable, readiness check degraded", "error", err)
	} else {
		defer func() { _ = milvusClient.Close() }()
	}

	trainingRepo := postgres.NewTrainingRepository(pgClient)
	llmClient := llm.NewClient(&cfg.LLM)
	completer := llm.NewTrainerCompleter(llmClient)
	vectorStore := milvus.NewTrainerVectorStore(milvus.NewRepository(milvusClient, cfg.Embedding.Dimension))
	queue := trainer.NewQueue(trainingRepo, completer, vectorStore, cfg.Training.RecordTTL)

	billQuery := billing.NewQuery(postgres.NewBillRepository(pgClient))

	r := router.New(cfg, router.Dependencies{
		Health:      handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Training:    handler.NewTrainingHandler(queue),
		Billing:     handler.NewBillingHandler(billQuery),
		RateLimiter: redis.NewRateLimiter(redisClient),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}
