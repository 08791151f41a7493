package controller

import (
	"errors"
	"net/http"
	"strconv"

	"edubank_backend/internal/model"
	"edubank_backend/internal/service"
	"edubank_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ResourceController struct {
	IngestService     *service.IngestService
	ModerationService *service.ModerationService
	DownloadService   *service.DownloadService
	Local             *service.LocalStore
}

func NewResourceController(ingestService *service.IngestService, moderationService *service.ModerationService, downloadService *service.DownloadService, local *service.LocalStore) *ResourceController {
	return &ResourceController{
		IngestService:     ingestService,
		ModerationService: moderationService,
		DownloadService:   downloadService,
		Local:             local,
	}
}

// Upload godoc
// @Summary 上传资源
// @Description 上传文件进入资源库，依次通过尺寸、类型、病毒、配额与去重校验
// @Tags 资源
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   file formData file true "文件"
// @Param   kind formData string true "资源类型"
// @Param   title formData string false "标题"
// @Param   subject_code formData string false "学科代码"
// @Param   official formData bool false "官方入库（仅管理员）"
// @Success 201 {object} util.Response{data=model.Resource} "入库成功"
// @Failure 409 {object} util.Response "内容重复"
// @Failure 413 {object} util.Response "文件超限"
// @Failure 422 {object} util.Response "检出病毒"
// @Failure 429 {object} util.Response "配额已满"
// @Router /api/v1/resources [post]
func (c *ResourceController) Upload(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少文件")
		return
	}

	input := &service.IngestInput{
		Kind:         model.ResourceKind(ctx.PostForm("kind")),
		Title:        ctx.PostForm("title"),
		SourceURL:    ctx.PostForm("source_url"),
		SubjectCode:  ctx.PostForm("subject_code"),
		Filename:     fileHeader.Filename,
		DeclaredSize: fileHeader.Size,
	}

	// 普通用户上传必有属主；管理员可代表系统做官方入库
	if ctx.PostForm("official") == "true" && claims.Role == model.Admin {
		input.OwnerID = nil
	} else {
		ownerID := claims.UserID
		input.OwnerID = &ownerID
	}

	f, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer f.Close()
	input.Reader = f

	resource, err := c.IngestService.Ingest(ctx.Request.Context(), input)
	if err != nil {
		respondIngestError(ctx, resource, err)
		return
	}

	util.Created(ctx, resource)
}

// respondIngestError 把入库门控的拒绝映射为对应状态码。
// 去重命中返回 409 并附既有资源ID，调用方可直接改用既有资源。
func respondIngestError(ctx *gin.Context, existing *model.Resource, err error) {
	var dup *util.DuplicateError
	switch {
	case errors.As(err, &dup):
		payload := gin.H{"existingId": dup.ExistingID}
		if existing != nil {
			payload["existing"] = existing
		}
		ctx.JSON(http.StatusConflict, util.Response{
			Code:    http.StatusConflict,
			Message: "内容已存在",
			Data:    payload,
		})
	case errors.Is(err, util.ErrFileTooLarge):
		util.Error(ctx, http.StatusRequestEntityTooLarge, "文件超过大小限制")
	case errors.Is(err, util.ErrInvalidKind):
		util.Error(ctx, http.StatusUnsupportedMediaType, "资源类型或文件格式不支持")
	case errors.Is(err, util.ErrQuotaExceeded):
		util.Error(ctx, http.StatusTooManyRequests, "资源配额已满")
	case errors.Is(err, util.ErrMalwareDetected):
		util.Error(ctx, http.StatusUnprocessableEntity, "文件未通过安全扫描")
	case errors.Is(err, util.ErrScannerUnavailable):
		util.Error(ctx, http.StatusServiceUnavailable, "安全扫描服务暂不可用，请稍后重试")
	default:
		util.LogInternalError(ctx, err)
	}
}

// List godoc
// @Summary 资源列表
// @Description 列出请求者可见的资源：公开资源与本人上传
// @Tags 资源
// @Produce  json
// @Param   kind query string false "按类型过滤"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/v1/resources [get]
func (c *ResourceController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var requesterID *uint
	if claims := util.GetUserFromContext(ctx); claims != nil {
		requesterID = &claims.UserID
	}

	resources, total, err := c.IngestService.ResourceRepo.ListVisible(
		requesterID, model.ResourceKind(ctx.Query("kind")), page, limit)
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

// ListByTopic godoc
// @Summary 主题选材
// @Description 按相关度降序列出主题下的公开资源，供课程编排自动选材
// @Tags 资源
// @Produce  json
// @Param   topicId path int true "主题ID"
// @Param   limit query int false "数量上限"
// @Success 200 {object} util.Response{data=[]model.Resource} "成功"
// @Router /api/v1/topics/{topicId}/resources [get]
func (c *ResourceController) ListByTopic(ctx *gin.Context) {
	topicID, err := strconv.ParseUint(ctx.Param("topicId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "主题ID无效")
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 50 {
		limit = 10
	}

	resources, err := c.ModerationService.TagRepo.TopResources(uint(topicID), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, resources)
}

// Get godoc
// @Summary 资源详情
// @Tags 资源
// @Produce  json
// @Param   id path string true "资源ID"
// @Success 200 {object} util.Response{data=model.Resource} "成功"
// @Failure 404 {object} util.Response "不存在或不可见"
// @Router /api/v1/resources/{id} [get]
func (c *ResourceController) Get(ctx *gin.Context) {
	resource, ok := c.visibleResource(ctx)
	if !ok {
		return
	}
	util.Success(ctx, resource)
}

// IssueDownloadURL godoc
// @Summary 签发下载链接
// @Description 生成绑定资源、请求者与过期时间的签名下载链接
// @Tags 资源
// @Produce  json
// @Param   id path string true "资源ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 404 {object} util.Response "不存在或不可见"
// @Router /api/v1/resources/{id}/download-url [post]
func (c *ResourceController) IssueDownloadURL(ctx *gin.Context) {
	resource, ok := c.visibleResource(ctx)
	if !ok {
		return
	}

	var requesterID *uint
	if claims := util.GetUserFromContext(ctx); claims != nil {
		requesterID = &claims.UserID
	}

	util.Success(ctx, gin.H{"url": c.DownloadService.SignedURL(resource.ID, requesterID)})
}

// Download godoc
// @Summary 下载资源
// @Description 校验签名参数后回传本地权威副本
// @Tags 资源
// @Produce  octet-stream
// @Param   id path string true "资源ID"
// @Param   requester query string true "请求者标识"
// @Param   expires query int true "过期时间戳"
// @Param   sig query string true "签名"
// @Success 200 {file} binary "文件内容"
// @Failure 401 {object} util.Response "签名无效或已过期"
// @Router /api/v1/resources/{id}/download [get]
func (c *ResourceController) Download(ctx *gin.Context) {
	id := ctx.Param("id")

	err := c.DownloadService.VerifySignedQuery(id,
		ctx.Query("requester"), ctx.Query("expires"), ctx.Query("sig"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrURLExpired):
			util.Error(ctx, http.StatusUnauthorized, "下载链接已过期")
		case errors.Is(err, util.ErrBadSignature), errors.Is(err, util.ErrMalformedDownloadQs):
			util.Error(ctx, http.StatusUnauthorized, "下载链接无效")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	resource, err := c.IngestService.ResourceRepo.FindByID(id)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	ctx.Header("Content-Disposition", "attachment; filename=\""+resource.Title+"\"")
	ctx.Header("Content-Type", resource.MimeType)
	ctx.File(c.Local.FullPath(resource.LocalPath))
}

// Publish godoc
// @Summary 公开已审核资源
// @Description 属主把已通过审核的私有资源改为公开，单向迁移
// @Tags 资源
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "资源ID"
// @Success 200 {object} util.Response{data=model.Resource} "成功"
// @Failure 409 {object} util.Response "状态不允许"
// @Router /api/v1/resources/{id}/publish [post]
func (c *ResourceController) Publish(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	resource, err := c.ModerationService.MakePublic(ctx.Param("id"), claims.UserID)
	if err != nil {
		respondTransitionError(ctx, err)
		return
	}
	util.Success(ctx, resource)
}

// visibleResource 取出资源并执行可见性检查；
// 不可见与不存在对外同样表现为 404
func (c *ResourceController) visibleResource(ctx *gin.Context) (*model.Resource, bool) {
	resource, err := c.IngestService.ResourceRepo.FindByID(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrResourceNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return nil, false
	}

	if resource.Visibility == model.VisibilityPublic {
		return resource, true
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.NotFound(ctx)
		return nil, false
	}
	if claims.Role == model.Admin || claims.Role == model.Moderator {
		return resource, true
	}
	if resource.OwnerID != nil && *resource.OwnerID == claims.UserID {
		return resource, true
	}

	util.NotFound(ctx)
	return nil, false
}
