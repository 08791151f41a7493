package repository

import (
	"edubank_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceTagRepository struct {
	DB *gorm.DB
}

func NewResourceTagRepository(db *gorm.DB) *ResourceTagRepository {
	return &ResourceTagRepository{DB: db}
}

// Upsert 幂等写入：同一 (topic, resource) 关联重复写入只更新相关度与来源
func (r *ResourceTagRepository) Upsert(tag *model.ResourceTag) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic_id"}, {Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relevance", "source"}),
	}).Create(tag).Error
}

// TopResources 自动选材：主题下相关度最高的前 n 个资源
func (r *ResourceTagRepository) TopResources(topicID uint, n int) ([]model.Resource, error) {
	var resources []model.Resource
	err := r.DB.Model(&model.Resource{}).
		Joins("JOIN resource_tags ON resource_tags.resource_id = resources.id").
		Where("resource_tags.topic_id = ? AND resources.visibility = ?", topicID, model.VisibilityPublic).
		Order("resource_tags.relevance DESC").
		Limit(n).
		Find(&resources).Error
	return resources, err
}

// DeleteByResource 资源被拒绝删除时清理其全部标签关联
func (r *ResourceTagRepository) DeleteByResource(resourceID string) error {
	return r.DB.Where("resource_id = ?", resourceID).Delete(&model.ResourceTag{}).Error
}
