package model

import "time"

// SyncTrigger 同步任务触发来源
type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
)

// SyncRunStatus 整轮同步的执行状态
type SyncRunStatus string

const (
	RunQueued    SyncRunStatus = "queued"
	RunRunning   SyncRunStatus = "running"
	RunSucceeded SyncRunStatus = "succeeded"
	RunFailed    SyncRunStatus = "failed"
)

// SyncRun 一轮同步/刷新作业的聚合记录。
// 整轮失败按配置上限重试，重试间隔较长；全部耗尽才触发告警。
// swagger:model SyncRun
type SyncRun struct {
	UUIDBase
	Trigger SyncTrigger   `gorm:"type:varchar(10);not null" json:"trigger"`
	Status  SyncRunStatus `gorm:"type:varchar(10);not null;default:'queued';index" json:"status"`
	Attempt int           `gorm:"not null;default:0" json:"attempt"`

	// 聚合计数
	Discovered int `gorm:"not null;default:0" json:"discovered"` // 发现的候选资源数
	Stored     int `gorm:"not null;default:0" json:"stored"`     // 新入库数
	Duplicates int `gorm:"not null;default:0" json:"duplicates"` // 签名去重跳过数
	Failed     int `gorm:"not null;default:0" json:"failed"`     // 失败数
	Linked     int `gorm:"not null;default:0" json:"linked"`     // 配对材料交叉关联数

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	LastError  string     `gorm:"type:text" json:"lastError,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
