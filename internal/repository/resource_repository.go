package repository

import (
	"errors"
	"time"

	"edubank_backend/internal/model"
	"edubank_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceRepository struct {
	DB *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{DB: db}
}

// FindBySignature 按内容签名查找既有资源（去重检查）
func (r *ResourceRepository) FindBySignature(signature string) (*model.Resource, error) {
	var resource model.Resource
	err := r.DB.Where("signature = ?", signature).First(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// TouchUpdatedAt 去重命中时刷新既有行的 updated_at（"仍然存在"心跳）
func (r *ResourceRepository) TouchUpdatedAt(id string) error {
	return r.DB.Model(&model.Resource{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).
		Error
}

// CountByOwner 统计某属主当前资源数
func (r *ResourceRepository) CountByOwner(ownerID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Resource{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count, err
}

// CreateWithinQuota 在单个事务内完成配额计数与插入。
// 属主行加锁后计数，并发上传不会绕过配额；签名唯一索引兜底去重竞态。
func (r *ResourceRepository) CreateWithinQuota(resource *model.Resource, quota int) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if resource.OwnerID != nil {
			q := tx.Model(&model.Resource{})
			// sqlite 不支持行锁，单写者场景下事务本身已足够
			if tx.Dialector.Name() == "mysql" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var count int64
			err := q.Where("owner_id = ?", *resource.OwnerID).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count >= int64(quota) {
				return util.ErrQuotaExceeded
			}
		}

		var existing model.Resource
		err := tx.Where("signature = ?", resource.Signature).First(&existing).Error
		if err == nil {
			return &util.DuplicateError{ExistingID: existing.ID}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(resource).Error
	})
}

func (r *ResourceRepository) FindByID(id string) (*model.Resource, error) {
	var resource model.Resource
	err := r.DB.First(&resource, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// Delete 硬删除资源行。拒绝（rejected）不是存储状态，而是删除动作，
// 行绝不能比它指向的文件活得更久
func (r *ResourceRepository) Delete(id string) error {
	return r.DB.Unscoped().Delete(&model.Resource{}, "id = ?", id).Error
}

// UpdateFields 单事务更新指定字段
func (r *ResourceRepository) UpdateFields(id string, updates map[string]interface{}) error {
	result := r.DB.Model(&model.Resource{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrResourceNotFound
	}
	return nil
}

// SetExtraction 回写提取结果
func (r *ResourceRepository) SetExtraction(id string, text string, method model.ExtractionMethod, pageCount, charCount int) error {
	return r.UpdateFields(id, map[string]interface{}{
		"extracted_text":        text,
		"extraction_method":     method,
		"extraction_char_count": charCount,
		"page_count":            pageCount,
	})
}

// SetSyncState 仅更新同步状态
func (r *ResourceRepository) SetSyncState(id string, state model.SyncState) error {
	return r.UpdateFields(id, map[string]interface{}{"sync_state": state})
}

// MarkSynced 成功同步：success 必须伴随 remote_url 与 last_synced_at 同时落库
func (r *ResourceRepository) MarkSynced(id, remoteURL string, syncedAt time.Time) error {
	return r.UpdateFields(id, map[string]interface{}{
		"sync_state":     model.SyncSuccess,
		"remote_url":     remoteURL,
		"last_synced_at": syncedAt,
	})
}

// FindBySyncStates 列出处于给定同步状态的资源（批量恢复入口）
func (r *ResourceRepository) FindBySyncStates(states ...model.SyncState) ([]model.Resource, error) {
	var resources []model.Resource
	err := r.DB.Where("sync_state IN ?", states).Order("updated_at ASC").Find(&resources).Error
	return resources, err
}

// CountBySyncState 按同步状态聚合计数（状态端点）
func (r *ResourceRepository) CountBySyncState() (map[model.SyncState]int64, error) {
	type row struct {
		SyncState model.SyncState
		Total     int64
	}
	var rows []row
	err := r.DB.Model(&model.Resource{}).
		Select("sync_state, COUNT(*) AS total").
		Group("sync_state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.SyncState]int64, len(rows))
	for _, v := range rows {
		counts[v.SyncState] = v.Total
	}
	return counts, nil
}

// ListVisible 列出请求者可见的资源：公开资源 + 本人上传
func (r *ResourceRepository) ListVisible(requesterID *uint, kind model.ResourceKind, page, limit int) ([]model.Resource, int64, error) {
	query := r.DB.Model(&model.Resource{})
	if requesterID != nil {
		query = query.Where("visibility = ? OR owner_id = ?", model.VisibilityPublic, *requesterID)
	} else {
		query = query.Where("visibility = ?", model.VisibilityPublic)
	}
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var resources []model.Resource
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&resources).Error
	return resources, total, err
}

// ListPendingReview 审核队列
func (r *ResourceRepository) ListPendingReview(page, limit int) ([]model.Resource, int64, error) {
	query := r.DB.Model(&model.Resource{}).Where("visibility = ?", model.VisibilityPendingReview)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var resources []model.Resource
	err := query.Order("created_at ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&resources).Error
	return resources, total, err
}
