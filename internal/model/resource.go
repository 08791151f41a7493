package model

import "time"

// ResourceKind 资源类型
type ResourceKind string

const (
	KindSyllabus   ResourceKind = "syllabus"
	KindTextbook   ResourceKind = "textbook"
	KindPastPaper  ResourceKind = "past_paper"
	KindVideo      ResourceKind = "video"
	KindArticle    ResourceKind = "article"
	KindUserUpload ResourceKind = "user_upload"
)

// Valid 校验资源类型是否为已知枚举值
func (k ResourceKind) Valid() bool {
	switch k {
	case KindSyllabus, KindTextbook, KindPastPaper, KindVideo, KindArticle, KindUserUpload:
		return true
	}
	return false
}

// Visibility 可见性：public 全租户可见，private 仅上传者与管理员，
// pending_review 等待审核（等同 private 的读权限）
type Visibility string

const (
	VisibilityPublic        Visibility = "public"
	VisibilityPrivate       Visibility = "private"
	VisibilityPendingReview Visibility = "pending_review"
)

// SyncState 远端副本同步状态
type SyncState string

const (
	SyncPending      SyncState = "pending"
	SyncSuccess      SyncState = "success"
	SyncFailed       SyncState = "failed"
	SyncPendingRetry SyncState = "pending_retry"
)

// ExtractionMethod 文本提取方式
type ExtractionMethod string

const (
	ExtractNative ExtractionMethod = "native"
	ExtractOCR    ExtractionMethod = "ocr"
)

// Resource 资源库中心实体。本地副本为权威副本，远端副本最终一致。
// swagger:model Resource
type Resource struct {
	UUIDBase
	Kind      ResourceKind `gorm:"type:varchar(20);not null;index" json:"kind"`
	Title     string       `gorm:"size:255;not null" json:"title"`
	SourceURL string       `gorm:"size:512" json:"sourceUrl,omitempty"`
	// LocalPath 本地权威副本路径（相对存储根目录）
	LocalPath string `gorm:"size:512;not null" json:"-"`
	// OwnerID 为空表示系统/官方资源
	OwnerID *uint `gorm:"index" json:"ownerId,omitempty"`

	Visibility         Visibility `gorm:"type:varchar(20);not null;default:'pending_review';index" json:"visibility"`
	ModerationApproved bool       `gorm:"not null;default:false" json:"moderationApproved"`
	// NeedsManualReview 扫描服务不可用时入库的资源必须人工复核，
	// 不可与"已扫描干净"混为一谈
	NeedsManualReview bool `gorm:"not null;default:false" json:"needsManualReview"`

	// Signature 内容 SHA-256，全局唯一去重键
	Signature string `gorm:"size:64;not null;uniqueIndex" json:"signature"`
	SizeBytes int64  `gorm:"not null;default:0" json:"sizeBytes"`
	MimeType  string `gorm:"size:100" json:"mimeType"`

	RemoteURL    string     `gorm:"size:512" json:"remoteUrl,omitempty"`
	SyncState    SyncState  `gorm:"type:varchar(20);not null;default:'pending';index" json:"syncState"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`

	ExtractedText       string           `gorm:"type:longtext" json:"-"`
	ExtractionMethod    ExtractionMethod `gorm:"type:varchar(10)" json:"extractionMethod,omitempty"`
	ExtractionCharCount int              `gorm:"not null;default:0" json:"extractionCharCount"`
	PageCount           int              `gorm:"not null;default:0" json:"pageCount"`

	// Attributes 仅存放类型专属的低频字段（页码范围、视频时长、标签等），
	// 参与查询或不变式校验的字段一律建为类型化列
	Attributes JSONMap `gorm:"type:json" json:"attributes,omitempty"`
}

func (Resource) TableName() string {
	return "resources"
}

// IsSystem 是否为系统/官方资源（无属主）
func (r *Resource) IsSystem() bool {
	return r.OwnerID == nil
}
