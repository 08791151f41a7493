package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/service"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker 后台任务消费端。同步与提取绝不占用请求路径，
// 全部在这里的 worker 池中执行。
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// WorkerDeps worker 处理器依赖
type WorkerDeps struct {
	ResourceRepo *repository.ResourceRepository
	Local        *service.LocalStore
	Extractor    service.Extractor
	Sync         *service.SyncService
	Orchestrator *service.OrchestratorService
	Queue        service.TaskQueue
}

func NewWorker(cfg *config.Config, deps *WorkerDeps) *Worker {
	server := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			QueueExtraction:  4,
			QueueSync:        5,
			QueueMaintenance: 1,
		},
		Logger: asynqLogger{},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExtraction, deps.handleExtraction)
	mux.HandleFunc(TypeSync, deps.handleSync)
	mux.HandleFunc(TypeSyncRun, deps.handleSyncRun)
	mux.HandleFunc(TypeScheduledRun, deps.handleScheduledRun)

	return &Worker{server: server, mux: mux}
}

func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleExtraction 文本提取。at-least-once 投递：
// 资源已被删除按空操作处理，已有提取结果则直接覆盖（结果相同）。
func (d *WorkerDeps) handleExtraction(ctx context.Context, t *asynq.Task) error {
	var p ResourcePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal extraction payload: %v: %w", err, asynq.SkipRetry)
	}

	resource, err := d.ResourceRepo.FindByID(p.ResourceID)
	if err != nil {
		if errors.Is(err, util.ErrResourceNotFound) {
			return nil
		}
		return err
	}

	result, err := d.Extractor.Extract(ctx, d.Local.FullPath(resource.LocalPath))
	if err != nil {
		monitoring.ExtractionCounter.WithLabelValues("unknown", "failed").Inc()
		logger.Log.Error("文本提取失败",
			zap.String("resource_id", p.ResourceID), zap.Error(err))
		return err
	}

	if err := d.ResourceRepo.SetExtraction(p.ResourceID, result.Text, result.Method, result.PageCount, result.CharCount); err != nil {
		return err
	}
	monitoring.ExtractionCounter.WithLabelValues(string(result.Method), "ok").Inc()
	logger.Log.Info("文本提取完成",
		zap.String("resource_id", p.ResourceID),
		zap.String("method", string(result.Method)),
		zap.Int("pages", result.PageCount),
		zap.Int("chars", result.CharCount))
	return nil
}

// handleSync 单资源远端同步。退避与状态迁移在同步器内部完成，
// 这里只把基础设施错误交给队列。
func (d *WorkerDeps) handleSync(ctx context.Context, t *asynq.Task) error {
	var p ResourcePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal sync payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err := d.Sync.SyncToRemote(ctx, p.ResourceID)
	return err
}

// handleSyncRun 整轮同步作业
func (d *WorkerDeps) handleSyncRun(ctx context.Context, t *asynq.Task) error {
	var p RunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal run payload: %v: %w", err, asynq.SkipRetry)
	}
	return d.Orchestrator.ExecuteRun(ctx, p.RunID, d.Queue)
}

// handleScheduledRun 定时触发入口：登记一轮 scheduled 作业后入队，
// 与人工触发走完全相同的执行路径
func (d *WorkerDeps) handleScheduledRun(ctx context.Context, t *asynq.Task) error {
	_, err := d.Orchestrator.StartRun(model.TriggerScheduled, d.Queue)
	return err
}

// asynqLogger 把 asynq 的内部日志接到 zap
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Log.Sugar().Debug(args...) }
func (asynqLogger) Info(args ...interface{})  { logger.Log.Sugar().Info(args...) }
func (asynqLogger) Warn(args ...interface{})  { logger.Log.Sugar().Warn(args...) }
func (asynqLogger) Error(args ...interface{}) { logger.Log.Sugar().Error(args...) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Log.Sugar().Fatal(args...) }
