package repository

import (
	"errors"
	"time"

	"edubank_backend/internal/model"
	"edubank_backend/internal/util"

	"gorm.io/gorm"
)

type SyncRunRepository struct {
	DB *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{DB: db}
}

func (r *SyncRunRepository) Create(run *model.SyncRun) error {
	return r.DB.Create(run).Error
}

func (r *SyncRunRepository) FindByID(id string) (*model.SyncRun, error) {
	var run model.SyncRun
	err := r.DB.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *SyncRunRepository) Update(run *model.SyncRun) error {
	return r.DB.Save(run).Error
}

// MarkStarted 置为运行中并记录开始时间
func (r *SyncRunRepository) MarkStarted(id string, attempt int) error {
	now := time.Now()
	return r.DB.Model(&model.SyncRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     model.RunRunning,
		"attempt":    attempt,
		"started_at": now,
	}).Error
}

// MarkFinished 落盘终态与聚合计数
func (r *SyncRunRepository) MarkFinished(run *model.SyncRun, status model.SyncRunStatus, lastErr string) error {
	now := time.Now()
	return r.DB.Model(&model.SyncRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":      status,
		"discovered":  run.Discovered,
		"stored":      run.Stored,
		"duplicates":  run.Duplicates,
		"failed":      run.Failed,
		"linked":      run.Linked,
		"finished_at": now,
		"last_error":  lastErr,
	}).Error
}

// ListRecent 最近的同步轮次，供状态端点展示
func (r *SyncRunRepository) ListRecent(limit int) ([]model.SyncRun, error) {
	var runs []model.SyncRun
	err := r.DB.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
