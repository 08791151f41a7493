package task

import (
	"time"

	"edubank_backend/internal/config"

	"github.com/hibiken/asynq"
)

// Client 持久化任务队列客户端。任务先落 redis 再由 worker 消费，
// 进程重启不丢任务；投递语义 at-least-once。
type Client struct {
	inner *asynq.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{inner: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueExtraction 入队文本提取任务
func (c *Client) EnqueueExtraction(resourceID string) error {
	t, err := newResourceTask(TypeExtraction, resourceID)
	if err != nil {
		return err
	}
	_, err = c.inner.Enqueue(t,
		asynq.Queue(QueueExtraction),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute))
	return err
}

// EnqueueSync 入队远端同步任务。退避重试在同步器内部完成，
// 队列层不再叠加重试。
func (c *Client) EnqueueSync(resourceID string) error {
	t, err := newResourceTask(TypeSync, resourceID)
	if err != nil {
		return err
	}
	_, err = c.inner.Enqueue(t,
		asynq.Queue(QueueSync),
		asynq.MaxRetry(0),
		asynq.Timeout(15*time.Minute))
	return err
}

// EnqueueSyncRun 入队整轮同步作业
func (c *Client) EnqueueSyncRun(runID string) error {
	return c.enqueueRun(runID, 0)
}

// EnqueueSyncRunIn 延迟入队整轮作业（作业级重试间隔）
func (c *Client) EnqueueSyncRunIn(runID string, delay time.Duration) error {
	return c.enqueueRun(runID, delay)
}

func (c *Client) enqueueRun(runID string, delay time.Duration) error {
	t, err := newRunTask(runID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(2 * time.Hour),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	_, err = c.inner.Enqueue(t, opts...)
	return err
}
