package task

import (
	"edubank_backend/internal/config"
	"edubank_backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Scheduler 每日定时投递一条 scheduled 触发任务，
// 真正的作业登记与执行都在 worker 侧完成
type Scheduler struct {
	inner *asynq.Scheduler
}

func NewScheduler(cfg *config.Config) (*Scheduler, error) {
	s := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{
		Logger: asynqLogger{},
	})

	entryID, err := s.Register(cfg.Sync.DailyCron,
		asynq.NewTask(TypeScheduledRun, nil),
		asynq.Queue(QueueMaintenance))
	if err != nil {
		return nil, err
	}
	logger.Log.Info("每日同步已注册",
		zap.String("cron", cfg.Sync.DailyCron),
		zap.String("entry_id", entryID))

	return &Scheduler{inner: s}, nil
}

func (s *Scheduler) Start() error {
	return s.inner.Start()
}

func (s *Scheduler) Shutdown() {
	s.inner.Shutdown()
}
