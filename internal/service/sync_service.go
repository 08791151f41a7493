package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TaskQueue 后台任务入队接口。校验器与同步器只负责入队，
// 独立 worker 池消费；投递语义 at-least-once，所有处理器必须幂等。
type TaskQueue interface {
	EnqueueExtraction(resourceID string) error
	EnqueueSync(resourceID string) error
	EnqueueSyncRun(runID string) error
	EnqueueSyncRunIn(runID string, delay time.Duration) error
}

// SyncOutcome 单次同步的结果分类
type SyncOutcome string

const (
	OutcomeSynced      SyncOutcome = "synced"      // 完成上传
	OutcomeVerified    SyncOutcome = "verified"    // 已同步，校验通过，未重传
	OutcomeUnreachable SyncOutcome = "unreachable" // 远端不可达，转入 pending_retry
	OutcomeFailed      SyncOutcome = "failed"      // 重试耗尽
	OutcomeSkipped     SyncOutcome = "skipped"     // 资源已不存在
)

const remoteReachableKey = "edubank:remote_reachable"

// SyncService 对象存储同步器。
// 本地副本是权威副本，远端副本最终一致；同步只在后台 worker 执行，
// 永不占用请求路径。
type SyncService struct {
	ResourceRepo *repository.ResourceRepository
	Local        *LocalStore
	Remote       RemoteProvider
	Redis        *redis.Client
	Cfg          *config.Config
}

func NewSyncService(resourceRepo *repository.ResourceRepository, local *LocalStore, remote RemoteProvider, rdb *redis.Client, cfg *config.Config) *SyncService {
	return &SyncService{
		ResourceRepo: resourceRepo,
		Local:        local,
		Remote:       remote,
		Redis:        rdb,
		Cfg:          cfg,
	}
}

// SyncToRemote 同步单个资源到远端。对重复调用幂等：
// 已是 success 的资源只做远端校验，绝不重传、不改写 remote_url。
func (s *SyncService) SyncToRemote(ctx context.Context, resourceID string) (SyncOutcome, error) {
	resource, err := s.ResourceRepo.FindByID(resourceID)
	if err != nil {
		// at-least-once 投递下资源可能已被拒绝删除，按空操作处理
		if errors.Is(err, util.ErrResourceNotFound) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, err
	}

	objectName := filepath.ToSlash(resource.LocalPath)

	if resource.SyncState == model.SyncSuccess {
		exists, statErr := s.Remote.Stat(ctx, objectName)
		if statErr == nil && exists {
			monitoring.SyncCounter.WithLabelValues(string(OutcomeVerified)).Inc()
			return OutcomeVerified, nil
		}
		// 远端对象丢失或校验失败：按未同步重走传输
		logger.Log.Warn("远端副本校验未通过，重新上传",
			zap.String("resource_id", resourceID),
			zap.Error(statErr))
	}

	// 可达性预检：停机不得产生与真实失败无法区分的 failed 记录
	if !s.RemoteReachable(ctx) {
		if err := s.ResourceRepo.SetSyncState(resourceID, model.SyncPendingRetry); err != nil {
			return OutcomeFailed, err
		}
		monitoring.SyncCounter.WithLabelValues(string(OutcomeUnreachable)).Inc()
		logger.Log.Warn("远端存储不可达，资源转入待重试",
			zap.String("resource_id", resourceID))
		return OutcomeUnreachable, nil
	}

	remoteURL, err := s.transferWithBackoff(ctx, objectName, resource)
	if err != nil {
		if stateErr := s.ResourceRepo.SetSyncState(resourceID, model.SyncFailed); stateErr != nil {
			return OutcomeFailed, stateErr
		}
		monitoring.SyncCounter.WithLabelValues(string(OutcomeFailed)).Inc()
		logger.Log.Error("资源同步重试耗尽",
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return OutcomeFailed, nil
	}

	if err := s.ResourceRepo.MarkSynced(resourceID, remoteURL, time.Now()); err != nil {
		return OutcomeFailed, err
	}
	monitoring.SyncCounter.WithLabelValues(string(OutcomeSynced)).Inc()
	logger.Log.Info("资源同步完成",
		zap.String("resource_id", resourceID),
		zap.String("remote_url", remoteURL))
	return OutcomeSynced, nil
}

// transferWithBackoff 指数退避 + 随机抖动的单资源传输。
// 超时的尝试视为瞬时失败进入下一次退避，不做特殊取消处理。
func (s *SyncService) transferWithBackoff(ctx context.Context, objectName string, resource *model.Resource) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.Cfg.Sync.InitialInterval

	var remoteURL string
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.Cfg.Sync.Timeout)
		defer cancel()

		url, err := s.Remote.Upload(attemptCtx, objectName, s.Local.FullPath(resource.LocalPath), resource.MimeType)
		if err != nil {
			return err
		}
		remoteURL = url
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(s.Cfg.Sync.MaxRetries)), ctx))
	if err != nil {
		return "", err
	}
	return remoteURL, nil
}

// BatchRecover 批量恢复：把所有 failed / pending_retry 的资源
// 统一置为 pending_retry 并各重新入队一次。停机结束后靠它整体回血，
// 不需要逐资源人工干预。
func (s *SyncService) BatchRecover(ctx context.Context, queue TaskQueue) (int, error) {
	resources, err := s.ResourceRepo.FindBySyncStates(model.SyncFailed, model.SyncPendingRetry)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, r := range resources {
		if r.SyncState != model.SyncPendingRetry {
			if err := s.ResourceRepo.SetSyncState(r.ID, model.SyncPendingRetry); err != nil {
				logger.Log.Error("批量恢复置状态失败", zap.String("resource_id", r.ID), zap.Error(err))
				continue
			}
		}
		if err := queue.EnqueueSync(r.ID); err != nil {
			logger.Log.Error("批量恢复入队失败", zap.String("resource_id", r.ID), zap.Error(err))
			continue
		}
		requeued++
	}

	logger.Log.Info("批量恢复完成", zap.Int("requeued", requeued))
	return requeued, nil
}

// RemoteReachable 可达性探测，结果短暂缓存避免探测风暴
func (s *SyncService) RemoteReachable(ctx context.Context) bool {
	if s.Redis != nil {
		if val, err := s.Redis.Get(ctx, remoteReachableKey).Result(); err == nil {
			return val == "1"
		}
	}

	ok := s.Remote.Reachable(ctx)

	if s.Redis != nil {
		val := "0"
		if ok {
			val = "1"
		}
		s.Redis.Set(ctx, remoteReachableKey, val, 30*time.Second)
	}
	return ok
}

// SyncStatus 同步状态端点载荷
type SyncStatus struct {
	Counts          map[model.SyncState]int64 `json:"counts"`
	RemoteReachable bool                      `json:"remoteReachable"`
}

func (s *SyncService) Status(ctx context.Context) (*SyncStatus, error) {
	counts, err := s.ResourceRepo.CountBySyncState()
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		Counts:          counts,
		RemoteReachable: s.RemoteReachable(ctx),
	}, nil
}
