package controller

import (
	"errors"
	"net/http"
	"strconv"

	"edubank_backend/internal/service"
	"edubank_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ModerationController struct {
	ModerationService *service.ModerationService
}

func NewModerationController(moderationService *service.ModerationService) *ModerationController {
	return &ModerationController{ModerationService: moderationService}
}

// ListPending godoc
// @Summary 审核队列
// @Description 按提交时间先后列出待审核资源
// @Tags 审核
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/v1/moderation/pending [get]
func (c *ModerationController) ListPending(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	resources, total, err := c.ModerationService.ResourceRepo.ListPendingReview(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  resources,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Approve godoc
// @Summary 批准资源
// @Description 待审核资源通过审核并转为公开，批准不可逆
// @Tags 审核
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "资源ID"
// @Success 200 {object} util.Response{data=model.Resource} "成功"
// @Failure 404 {object} util.Response "不存在"
// @Failure 409 {object} util.Response "状态不允许"
// @Router /api/v1/moderation/{id}/approve [post]
func (c *ModerationController) Approve(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	resource, err := c.ModerationService.Approve(ctx.Param("id"), claims.UserID)
	if err != nil {
		respondTransitionError(ctx, err)
		return
	}
	util.Success(ctx, resource)
}

// Reject godoc
// @Summary 拒绝资源
// @Description 删除文件与记录，拒绝后该内容可重新提交
// @Tags 审核
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "资源ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "不存在"
// @Failure 409 {object} util.Response "已批准的资源不能拒绝"
// @Router /api/v1/moderation/{id}/reject [post]
func (c *ModerationController) Reject(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if err := c.ModerationService.Reject(ctx.Param("id"), claims.UserID); err != nil {
		respondTransitionError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// EditMetadata godoc
// @Summary 修订资源元数据
// @Description 批准之前允许修订标题、来源与页码范围等描述性字段
// @Tags 审核
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "资源ID"
// @Param   body body service.MetadataEdit true "修订内容"
// @Success 200 {object} util.Response{data=model.Resource} "成功"
// @Failure 409 {object} util.Response "已批准后不可修订"
// @Router /api/v1/moderation/{id}/metadata [patch]
func (c *ModerationController) EditMetadata(ctx *gin.Context) {
	var edit service.MetadataEdit
	if err := ctx.ShouldBindJSON(&edit); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resource, err := c.ModerationService.EditMetadata(ctx.Param("id"), &edit)
	if err != nil {
		if errors.Is(err, util.ErrInvalidPageRange) {
			util.BadRequest(ctx, "页码范围无效")
			return
		}
		respondTransitionError(ctx, err)
		return
	}
	util.Success(ctx, resource)
}

// respondTransitionError 状态机错误映射："不存在"是 404，
// "状态不合法"是 409，二者语义不同不可混用
func respondTransitionError(ctx *gin.Context, err error) {
	var transition *util.TransitionError
	switch {
	case errors.Is(err, util.ErrResourceNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrNotOwner):
		util.Forbidden(ctx)
	case errors.As(err, &transition):
		util.Error(ctx, http.StatusConflict, transition.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
