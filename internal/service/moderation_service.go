package service

import (
	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// ModerationService 审核状态机。
// 每个迁移都是带前置校验的显式操作，绝不通过裸写字段推断状态；
// rejected 不是存储状态而是删除动作。
type ModerationService struct {
	ResourceRepo *repository.ResourceRepository
	TagRepo      *repository.ResourceTagRepository
	Local        *LocalStore
}

func NewModerationService(resourceRepo *repository.ResourceRepository, tagRepo *repository.ResourceTagRepository, local *LocalStore) *ModerationService {
	return &ModerationService{
		ResourceRepo: resourceRepo,
		TagRepo:      tagRepo,
		Local:        local,
	}
}

// Approve pending_review → public，单向。
// 对已批准资源重复批准是错误而非空操作：审计日志只记录真实的状态变化。
func (s *ModerationService) Approve(id string, moderatorID uint) (*model.Resource, error) {
	resource, err := s.ResourceRepo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if resource.ModerationApproved {
		return nil, &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "approve", Reason: util.ErrAlreadyApproved}
	}
	if resource.Visibility != model.VisibilityPendingReview {
		return nil, &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "approve", Reason: util.ErrNotPendingReview}
	}

	err = s.ResourceRepo.UpdateFields(id, map[string]interface{}{
		"visibility":          model.VisibilityPublic,
		"moderation_approved": true,
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("资源审核通过",
		zap.String("resource_id", id),
		zap.Uint("moderator_id", moderatorID))
	monitoring.ModerationCounter.WithLabelValues("approve").Inc()

	resource.Visibility = model.VisibilityPublic
	resource.ModerationApproved = true
	return resource, nil
}

// Reject pending_review → 删除。仅允许未批准的资源。
// 先删文件后删行：行绝不比它指向的文件活得更久，
// 文件删除失败时行保留，调用方可重试清理。
func (s *ModerationService) Reject(id string, moderatorID uint) error {
	resource, err := s.ResourceRepo.FindByID(id)
	if err != nil {
		return err
	}

	if resource.ModerationApproved {
		return &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "reject", Reason: util.ErrRejectApproved}
	}

	if err := s.Local.Remove(resource.LocalPath); err != nil {
		return err
	}
	if err := s.TagRepo.DeleteByResource(id); err != nil {
		return err
	}
	if err := s.ResourceRepo.Delete(id); err != nil {
		return err
	}

	logger.Log.Info("资源被拒绝并删除",
		zap.String("resource_id", id),
		zap.Uint("moderator_id", moderatorID))
	monitoring.ModerationCounter.WithLabelValues("reject").Inc()

	return nil
}

// MakePublic private → public，属主自愿扩大已批准资源的可见范围
func (s *ModerationService) MakePublic(id string, ownerID uint) (*model.Resource, error) {
	resource, err := s.ResourceRepo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if resource.OwnerID == nil || *resource.OwnerID != ownerID {
		return nil, util.ErrNotOwner
	}
	// 任何进入 public 的迁移都要求已通过审核
	if !resource.ModerationApproved {
		return nil, &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "publish", Reason: util.ErrNotApproved}
	}
	if resource.Visibility != model.VisibilityPrivate {
		return nil, &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "publish", Reason: util.ErrNotPrivate}
	}

	if err := s.ResourceRepo.UpdateFields(id, map[string]interface{}{
		"visibility": model.VisibilityPublic,
	}); err != nil {
		return nil, err
	}

	resource.Visibility = model.VisibilityPublic
	return resource, nil
}

// MetadataEdit 审核前的元数据修订
type MetadataEdit struct {
	Title     *string  `json:"title"`
	SourceURL *string  `json:"sourceUrl"`
	PageStart *int     `json:"pageStart"`
	PageEnd   *int     `json:"pageEnd"`
	Tags      []string `json:"tags"`
}

// EditMetadata 批准之前允许审核员修订标题与描述性属性；
// 批准之后的编辑不属于本状态机
func (s *ModerationService) EditMetadata(id string, edit *MetadataEdit) (*model.Resource, error) {
	resource, err := s.ResourceRepo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if resource.ModerationApproved {
		return nil, &util.TransitionError{ResourceID: id, From: string(resource.Visibility), Op: "edit", Reason: util.ErrEditAfterApproval}
	}

	updates := map[string]interface{}{}
	if edit.Title != nil {
		updates["title"] = *edit.Title
	}
	if edit.SourceURL != nil {
		updates["source_url"] = *edit.SourceURL
	}

	attrs := resource.Attributes
	if attrs == nil {
		attrs = model.JSONMap{}
	}
	if edit.PageStart != nil || edit.PageEnd != nil {
		if edit.PageStart == nil || edit.PageEnd == nil ||
			*edit.PageStart < 1 || *edit.PageEnd < *edit.PageStart {
			return nil, util.ErrInvalidPageRange
		}
		attrs["page_start"] = *edit.PageStart
		attrs["page_end"] = *edit.PageEnd
	}
	if edit.Tags != nil {
		attrs["tags"] = edit.Tags
	}
	if len(attrs) > 0 {
		updates["attributes"] = attrs
	}

	if len(updates) == 0 {
		return resource, nil
	}

	if err := s.ResourceRepo.UpdateFields(id, updates); err != nil {
		return nil, err
	}
	return s.ResourceRepo.FindByID(id)
}
