package task

import (
	"encoding/json"
	"fmt"

	"edubank_backend/internal/config"

	"github.com/hibiken/asynq"
)

// 任务类型。提取与同步分队列调度，互不抢占；
// 维护类任务（整轮同步）单独一条低并发队列。
const (
	TypeExtraction   = "resource:extract"
	TypeSync         = "resource:sync"
	TypeSyncRun      = "sync:run"
	TypeScheduledRun = "sync:scheduled"
)

// 队列名与权重
const (
	QueueExtraction  = "extraction"
	QueueSync        = "sync"
	QueueMaintenance = "maintenance"
)

// ResourcePayload 单资源任务载荷
type ResourcePayload struct {
	ResourceID string `json:"resource_id"`
}

// RunPayload 整轮作业任务载荷
type RunPayload struct {
	RunID string `json:"run_id"`
}

func newResourceTask(typeName, resourceID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ResourcePayload{ResourceID: resourceID})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, payload), nil
}

func newRunTask(runID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RunPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("marshal run payload: %w", err)
	}
	return asynq.NewTask(TypeSyncRun, payload), nil
}

// RedisOpt 由应用配置构造 asynq 的 redis 连接参数
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
