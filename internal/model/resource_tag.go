package model

import "time"

// TagSource 标签关联的添加来源
type TagSource string

const (
	TagBySystem  TagSource = "system"
	TagByAdmin   TagSource = "admin"
	TagByStudent TagSource = "student"
)

// ResourceTag 资源与大纲主题的关联表，
// relevance 降序排序驱动其他模块的自动选材
// swagger:model ResourceTag
type ResourceTag struct {
	TopicID    uint      `gorm:"primaryKey;autoIncrement:false" json:"topicId"`
	ResourceID string    `gorm:"primaryKey;type:varchar(36)" json:"resourceId"`
	Relevance  float64   `gorm:"not null;default:0" json:"relevance"` // [0,1]
	Source     TagSource `gorm:"type:varchar(10);not null;default:'system'" json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (ResourceTag) TableName() string {
	return "resource_tags"
}
