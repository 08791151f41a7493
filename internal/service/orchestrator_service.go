package service

import (
	"context"
	"fmt"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// OrchestratorService 整轮同步作业编排。
// 定时触发与人工触发走同一条执行路径，结果都落到 sync_runs 表。
// 单个资源的失败计入本轮计数但不判定整轮失败；
// 只有基础设施层面的错误（数据库不可用等）才触发整轮重试。
type OrchestratorService struct {
	RunRepo      *repository.SyncRunRepository
	ResourceRepo *repository.ResourceRepository
	TagRepo      *repository.ResourceTagRepository
	Sync         *SyncService
	Cfg          *config.Config
}

func NewOrchestratorService(runRepo *repository.SyncRunRepository, resourceRepo *repository.ResourceRepository, tagRepo *repository.ResourceTagRepository, syncSvc *SyncService, cfg *config.Config) *OrchestratorService {
	return &OrchestratorService{
		RunRepo:      runRepo,
		ResourceRepo: resourceRepo,
		TagRepo:      tagRepo,
		Sync:         syncSvc,
		Cfg:          cfg,
	}
}

// StartRun 登记一轮新作业并入队。定时器与管理端复用同一入口，
// 仅 trigger 字段不同。
func (s *OrchestratorService) StartRun(trigger model.SyncTrigger, queue TaskQueue) (*model.SyncRun, error) {
	run := &model.SyncRun{
		Trigger: trigger,
		Status:  model.RunQueued,
		Attempt: 0,
	}
	if err := s.RunRepo.Create(run); err != nil {
		return nil, err
	}
	if err := queue.EnqueueSyncRun(run.ID); err != nil {
		return nil, err
	}
	logger.Log.Info("同步作业已入队",
		zap.String("run_id", run.ID),
		zap.String("trigger", string(trigger)))
	return run, nil
}

// ExecuteRun 执行一轮作业：发现待同步资源、逐个推送远端、
// 补建主题关联。worker 侧调用，at-least-once 投递下可安全重放。
func (s *OrchestratorService) ExecuteRun(ctx context.Context, runID string, queue TaskQueue) error {
	run, err := s.RunRepo.FindByID(runID)
	if err != nil {
		return err
	}
	if run.Status == model.RunSucceeded {
		// 重复投递的完成作业直接跳过
		return nil
	}

	attempt := run.Attempt + 1
	if err := s.RunRepo.MarkStarted(runID, attempt); err != nil {
		return err
	}
	run.Attempt = attempt

	if execErr := s.execute(ctx, run); execErr != nil {
		return s.handleRunFailure(run, execErr, queue)
	}

	if err := s.RunRepo.MarkFinished(run, model.RunSucceeded, ""); err != nil {
		return err
	}
	logger.Log.Info("同步作业完成",
		zap.String("run_id", runID),
		zap.Int("discovered", run.Discovered),
		zap.Int("stored", run.Stored),
		zap.Int("duplicates", run.Duplicates),
		zap.Int("failed", run.Failed),
		zap.Int("linked", run.Linked))
	return nil
}

// execute 本轮的实际工作，计数直接累积到 run 上
func (s *OrchestratorService) execute(ctx context.Context, run *model.SyncRun) error {
	candidates, err := s.ResourceRepo.FindBySyncStates(
		model.SyncPending, model.SyncPendingRetry, model.SyncFailed)
	if err != nil {
		return fmt.Errorf("discover candidates: %w", err)
	}
	run.Discovered = len(candidates)

	for _, r := range candidates {
		outcome, err := s.Sync.SyncToRemote(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("sync resource %s: %w", r.ID, err)
		}
		switch outcome {
		case OutcomeSynced:
			run.Stored++
		case OutcomeVerified, OutcomeSkipped:
			run.Duplicates++
		case OutcomeFailed, OutcomeUnreachable:
			run.Failed++
		}

		linked, err := s.linkTopics(&r)
		if err != nil {
			return fmt.Errorf("link topics for %s: %w", r.ID, err)
		}
		run.Linked += linked
	}
	return nil
}

// linkTopics 把入库时记录在 attributes.topics 里的主题提示
// 物化为正式的主题关联，幂等 upsert。
func (s *OrchestratorService) linkTopics(r *model.Resource) (int, error) {
	raw, ok := r.Attributes["topics"]
	if !ok {
		return 0, nil
	}
	hints, ok := raw.([]interface{})
	if !ok {
		return 0, nil
	}

	linked := 0
	for _, h := range hints {
		// JSON 反序列化后的数字是 float64
		id, ok := h.(float64)
		if !ok || id <= 0 {
			continue
		}
		link := &model.ResourceTag{
			TopicID:    uint(id),
			ResourceID: r.ID,
			Relevance:  1.0,
			Source:     model.TagBySystem,
		}
		if err := s.TagRepo.Upsert(link); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// handleRunFailure 整轮失败的有限重试。重试耗尽时告警并判终态失败，
// 不再无限排队。
func (s *OrchestratorService) handleRunFailure(run *model.SyncRun, execErr error, queue TaskQueue) error {
	if run.Attempt >= s.Cfg.Sync.RunMaxAttempts {
		monitoring.SyncRunExhaustedCounter.Inc()
		logger.Log.Error("同步作业重试耗尽，需要人工介入",
			zap.String("run_id", run.ID),
			zap.Int("attempts", run.Attempt),
			zap.Error(execErr))
		return s.RunRepo.MarkFinished(run, model.RunFailed, execErr.Error())
	}

	if err := s.RunRepo.MarkFinished(run, model.RunQueued, execErr.Error()); err != nil {
		return err
	}
	logger.Log.Warn("同步作业失败，延迟后重试",
		zap.String("run_id", run.ID),
		zap.Int("attempt", run.Attempt),
		zap.Duration("delay", s.Cfg.Sync.RunRetryDelay),
		zap.Error(execErr))
	return queue.EnqueueSyncRunIn(run.ID, s.Cfg.Sync.RunRetryDelay)
}

// RecentRuns 最近若干轮作业记录
func (s *OrchestratorService) RecentRuns(limit int) ([]model.SyncRun, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.RunRepo.ListRecent(limit)
}
