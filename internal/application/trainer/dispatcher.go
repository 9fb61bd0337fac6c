package trainer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fastgpt-training/internal/config"
	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
	apperrors "fastgpt-training/pkg/errors"
	"fastgpt-training/pkg/logger"
	"fastgpt-training/pkg/metrics"
)

var dispatchTracer = otel.Tracer("trainer.dispatcher")

// backlogReportInterval 积压指标上报间隔
const backlogReportInterval = 30 * time.Second

// Dispatcher 训练派发器。
// 每个模式运行固定数量的常驻通道，通道循环认领并处理记录；
// 记录处理失败不会终止通道，按错误类别分别处置。
type Dispatcher struct {
	records  repository.TrainingRepository
	tx       repository.Transactor
	guard    QuotaGuard
	biller   Biller
	notifier Notifier
	qa       *QASplitter
	embed    *EmbedStage
	cfg      *config.TrainingConfig
}

// NewDispatcher 创建训练派发器
func NewDispatcher(
	records repository.TrainingRepository,
	tx repository.Transactor,
	guard QuotaGuard,
	biller Biller,
	notifier Notifier,
	qa *QASplitter,
	embed *EmbedStage,
	cfg *config.TrainingConfig,
) *Dispatcher {
	return &Dispatcher{
		records:  records,
		tx:       tx,
		guard:    guard,
		biller:   biller,
		notifier: notifier,
		qa:       qa,
		embed:    embed,
		cfg:      cfg,
	}
}

// Run 启动全部通道和后台任务，阻塞直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.cfg.QALanes; i++ {
		g.Go(func() error {
			d.runLane(ctx, entity.TrainingModeQA)
			return nil
		})
	}
	for i := 0; i < d.cfg.VectorLanes; i++ {
		g.Go(func() error {
			d.runLane(ctx, entity.TrainingModeChunk)
			return nil
		})
	}

	g.Go(func() error {
		d.runJanitor(ctx)
		return nil
	})
	g.Go(func() error {
		d.reportBacklog(ctx)
		return nil
	})

	logger.Info(ctx, "dispatcher started",
		"qa_lanes", d.cfg.QALanes,
		"vector_lanes", d.cfg.VectorLanes,
	)
	return g.Wait()
}

// runLane 单条通道的认领循环
func (d *Dispatcher) runLane(ctx context.Context, mode entity.TrainingMode) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, delay := d.RunOnce(ctx, mode)
		if !claimed {
			delay = d.cfg.PollInterval
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// RunOnce 认领并处理一条记录。
// 返回是否认领到记录，以及通道在下一次认领前应等待的时间。
func (d *Dispatcher) RunOnce(ctx context.Context, mode entity.TrainingMode) (bool, time.Duration) {
	rec, err := d.records.Claim(ctx, mode, d.cfg.LeaseWindow(string(mode)))
	if err != nil {
		metrics.TrainingClaimsTotal.WithLabelValues(string(mode), "error").Inc()
		logger.Error(ctx, "failed to claim training record", err, "mode", mode)
		return false, d.cfg.RetryDelay
	}
	if rec == nil {
		metrics.TrainingClaimsTotal.WithLabelValues(string(mode), "empty").Inc()
		return false, 0
	}
	metrics.TrainingClaimsTotal.WithLabelValues(string(mode), "claimed").Inc()

	ctx = logger.WithContext(ctx, logger.TeamIDKey, rec.TeamID)
	ctx = logger.WithContext(ctx, logger.UserIDKey, rec.UserID)
	ctx = logger.WithContext(ctx, logger.DatasetIDKey, rec.DatasetID)
	ctx = logger.WithContext(ctx, logger.CollectionIDKey, rec.CollectionID)

	metrics.TrainingLanesBusy.WithLabelValues(string(mode)).Inc()
	defer metrics.TrainingLanesBusy.WithLabelValues(string(mode)).Dec()

	start := time.Now()
	err = d.process(ctx, rec)
	metrics.TrainingProcessDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.TrainingRecordsTotal.WithLabelValues(string(mode), "success").Inc()
		return true, 0
	}
	return true, d.handleFailure(ctx, rec, err)
}

// process 处理单条记录：配额检查、计费、执行对应阶段、删除记录
func (d *Dispatcher) process(ctx context.Context, rec *entity.TrainingRecord) error {
	ctx, span := dispatchTracer.Start(ctx, "trainer.Dispatcher.process",
		trace.WithAttributes(
			attribute.String("record_id", rec.ID),
			attribute.String("mode", string(rec.Mode)),
		))
	defer span.End()

	user, err := d.guard.Check(ctx, rec.UserID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var source entity.BillSource
	if rec.Mode == entity.TrainingModeQA {
		source = entity.BillSourceQA
	} else {
		source = entity.BillSourceVector
	}
	billID := d.biller.Open(ctx, rec.TeamID, rec.UserID, source)

	switch rec.Mode {
	case entity.TrainingModeQA:
		err = d.processQA(ctx, rec, user.OpenaiKey, billID)
	default:
		err = d.processChunk(ctx, rec, user.OpenaiKey, billID)
	}

	if err != nil {
		span.RecordError(err)
		d.biller.Rollback(ctx, billID)
		return err
	}

	d.biller.Finalize(ctx, billID)
	return nil
}

// processQA 执行 QA 拆分，把问答对转为 chunk 模式记录重新入队
func (d *Dispatcher) processQA(ctx context.Context, rec *entity.TrainingRecord, userKey, billID string) error {
	result, err := d.qa.Split(ctx, rec.Model, rec.Q, rec.Prompt, userKey)
	if err != nil {
		return err
	}

	d.biller.AddChatUsage(ctx, billID, "QA 拆分", rec.Model, result.PromptTokens+result.CompletionTokens)

	derived := make([]*entity.TrainingRecord, 0, len(result.Pairs))
	for _, pair := range result.Pairs {
		derived = append(derived, entity.NewTrainingRecord(
			rec.TeamID, rec.UserID, rec.DatasetID, rec.CollectionID,
			entity.TrainingModeChunk, pair.Q, pair.A, "", rec.Model, rec.Source,
			d.cfg.RecordTTL,
		))
	}

	// 派生记录入队与原记录删除同事务，避免失败重试时重复派生
	swap := func(ctx context.Context) error {
		if err := d.records.BulkCreate(ctx, derived); err != nil {
			return fmt.Errorf("failed to enqueue derived chunks: %w", err)
		}
		if err := d.records.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to delete processed record: %w", err)
		}
		return nil
	}
	if d.tx != nil {
		err = d.tx.WithTransaction(ctx, swap)
	} else {
		err = swap(ctx)
	}
	if err != nil {
		return err
	}

	logger.Info(ctx, "qa record processed",
		"record_id", rec.ID,
		"pairs", len(result.Pairs),
		"fallback", result.Fallback,
	)
	return nil
}

// processChunk 执行向量化入库
func (d *Dispatcher) processChunk(ctx context.Context, rec *entity.TrainingRecord, userKey, billID string) error {
	tokensUsed, err := d.embed.Process(ctx, rec, userKey)
	if err != nil {
		return err
	}

	d.biller.AddEmbeddingUsage(ctx, billID, "索引向量化", d.embed.embedder.Model(), tokensUsed)

	if err := d.records.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete processed record: %w", err)
	}

	logger.Debug(ctx, "chunk record vectorized", "record_id", rec.ID, "tokens", tokensUsed)
	return nil
}

// handleFailure 按错误类别处置失败记录，返回通道退避时间
func (d *Dispatcher) handleFailure(ctx context.Context, rec *entity.TrainingRecord, err error) time.Duration {
	mode := string(rec.Mode)

	switch {
	case apperrors.IsFatalContent(err):
		// 内容或账户不可恢复，删除记录；对用户静默，只留日志和指标
		metrics.TrainingRecordsTotal.WithLabelValues(mode, "fatal").Inc()
		logger.Warn(ctx, "dropping unprocessable training record",
			"record_id", rec.ID,
			"error", err,
		)
		if delErr := d.records.Delete(ctx, rec.ID); delErr != nil {
			logger.Error(ctx, "failed to delete unprocessable record", delErr, "record_id", rec.ID)
		}
		return 0

	case apperrors.IsProviderAuth(err):
		// 提供商拒绝凭证，用同一把坏密钥重试不会成功，删除记录
		metrics.TrainingRecordsTotal.WithLabelValues(mode, "auth").Inc()
		logger.Warn(ctx, "provider rejected credentials, dropping training record",
			"record_id", rec.ID,
			"error", err,
		)
		if delErr := d.records.Delete(ctx, rec.ID); delErr != nil {
			logger.Error(ctx, "failed to delete unprocessable record", delErr, "record_id", rec.ID)
		}
		return 0

	case apperrors.IsInsufficientQuota(err):
		// 余额不足：停放该用户全部待处理记录并通知，通道立即继续处理他人任务
		metrics.TrainingRecordsTotal.WithLabelValues(mode, "quota").Inc()
		parked, parkErr := d.records.ParkByUser(ctx, rec.UserID)
		if parkErr != nil {
			logger.Error(ctx, "failed to park records", parkErr, "user_id", rec.UserID)
		} else {
			metrics.TrainingParkedTotal.Add(float64(parked))
			logger.Info(ctx, "parked records on insufficient balance",
				"user_id", rec.UserID,
				"parked", parked,
			)
		}
		if d.notifier != nil {
			if notifyErr := d.notifier.NotifyInsufficientBalance(ctx, rec.TeamID, rec.UserID); notifyErr != nil {
				logger.Warn(ctx, "failed to notify insufficient balance", "error", notifyErr, "user_id", rec.UserID)
			}
		}
		return 0

	case apperrors.IsRateLimited(err):
		// 限流：保留租约让记录稍后自然到期重试，通道退避
		metrics.TrainingRecordsTotal.WithLabelValues(mode, "rate_limited").Inc()
		logger.Warn(ctx, "provider rate limited, backing off",
			"record_id", rec.ID,
			"error", err,
		)
		return d.cfg.RetryDelay

	default:
		// 瞬时错误：立即解锁记录并退避重试
		metrics.TrainingRecordsTotal.WithLabelValues(mode, "retry").Inc()
		logger.Error(ctx, "training record failed, will retry", err, "record_id", rec.ID)
		if unlockErr := d.records.Unlock(ctx, rec.ID); unlockErr != nil {
			logger.Error(ctx, "failed to unlock record", unlockErr, "record_id", rec.ID)
		}
		return d.cfg.RetryDelay
	}
}

// ResumeUser 恢复某用户的停放记录，余额充值事件触发
func (d *Dispatcher) ResumeUser(ctx context.Context, userID string) error {
	resumed, err := d.records.UnparkByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resume parked records: %w", err)
	}
	if resumed > 0 {
		logger.Info(ctx, "resumed parked records", "user_id", userID, "resumed", resumed)
	}
	return nil
}

// runJanitor 周期清理超过存活期的记录
func (d *Dispatcher) runJanitor(ctx context.Context) {
	interval := d.cfg.JanitorInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := d.records.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.Error(ctx, "failed to delete expired records", err)
				continue
			}
			if deleted > 0 {
				metrics.TrainingExpiredTotal.Add(float64(deleted))
				logger.Info(ctx, "expired training records removed", "deleted", deleted)
			}
		}
	}
}

// reportBacklog 周期上报各模式积压
func (d *Dispatcher) reportBacklog(ctx context.Context) {
	ticker := time.NewTicker(backlogReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, mode := range []entity.TrainingMode{entity.TrainingModeChunk, entity.TrainingModeQA} {
				count, err := d.records.CountByMode(ctx, mode)
				if err != nil {
					continue
				}
				metrics.TrainingBacklog.WithLabelValues(string(mode)).Set(float64(count))
			}
		}
	}
}
