// Package main 训练进程入口（training-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fastgpt-training/internal/application/billing"
	"fastgpt-training/internal/application/quota"
	"fastgpt-training/internal/application/trainer"
	"fastgpt-training/internal/config"
	"fastgpt-training/internal/infrastructure/embedding"
	"fastgpt-training/internal/infrastructure/llm"
	"fastgpt-training/internal/infrastructure/messaging"
	"fastgpt-training/internal/infrastructure/persistence/milvus"
	"fastgpt-training/internal/infrastructure/persistence/postgres"
	"fastgpt-training/internal/infrastructure/persistence/redis"
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
	log.Info("starting training-worker",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "training-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	// 存储层
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

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to init milvus", err)
	}
	defer func() { _ = milvusClient.Close() }()

	milvusRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := milvusRepo.EnsureDatasetChunksCollection(ctx); err != nil {
		logger.Fatal(ctx, "failed to ensure milvus collection", err)
	}

	txManager := postgres.NewTxManager(pgClient)
	trainingRepo := postgres.NewTrainingRepository(pgClient)
	billRepo := postgres.NewBillRepository(pgClient)
	userRepo := postgres.NewUserRepository(pgClient)
	cache := redis.NewCache(redisClient)

	// 模型调用层
	llmClient := llm.NewClient(&cfg.LLM)
	completer := llm.NewTrainerCompleter(llmClient)
	embClient := embedding.NewClient(&cfg.Embedding)
	embedder := embedding.NewTrainerEmbedder(embClient)
	vectorStore := milvus.NewTrainerVectorStore(milvusRepo)

	// 计费与配额
	pricing := billing.NewPricing(&cfg.Billing)
	ledger := billing.NewLedger(billRepo, userRepo, pricing, cache, cfg.App.Name)
	guard := quota.NewGuard(userRepo, cache)

	// 通知
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	notifier := messaging.NewTrainerNotifier(producer)

	// 训练流水线
	qaSplitter := trainer.NewQASplitter(completer, cfg.Training.QAFallbackChunkSize, cfg.Training.QAMinCompletionTokens)
	embedStage := trainer.NewEmbedStage(embedder, vectorStore)
	dispatcher := trainer.NewDispatcher(trainingRepo, txManager, guard, ledger, notifier, qaSplitter, embedStage, &cfg.Training)

	// 余额充值事件消费，充值后恢复停放的训练记录
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamBalanceEvents,
		Group:        messaging.ConsumerGroupTrainingWorker,
		ConsumerName: hostnameConsumerName(),
	})
	consumer.RegisterHandler(messaging.MessageTypeBalanceRecharged, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.BalanceRechargedMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return dispatcher.ResumeUser(ctx, payload.UserID)
	})
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start balance event consumer", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- dispatcher.Run(runCtx)
	}()

	log.Info("training-worker started",
		"qa_lanes", cfg.Training.QALanes,
		"vector_lanes", cfg.Training.VectorLanes,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("training-worker shutting down")
		cancel()
		<-done
	case err := <-done:
		cancel()
		if err != nil {
			logger.Error(ctx, "dispatcher stopped unexpectedly", err)
		}
	}

	consumer.Stop()
	log.Info("training-worker exited")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
