package controller

import (
	"net/http"
	"strconv"

	"edubank_backend/internal/model"
	"edubank_backend/internal/service"
	"edubank_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SyncController struct {
	SyncService  *service.SyncService
	Orchestrator *service.OrchestratorService
	Queue        service.TaskQueue
}

func NewSyncController(syncService *service.SyncService, orchestrator *service.OrchestratorService, queue service.TaskQueue) *SyncController {
	return &SyncController{
		SyncService:  syncService,
		Orchestrator: orchestrator,
		Queue:        queue,
	}
}

// Status godoc
// @Summary 同步状态
// @Description 按同步状态聚合的资源计数与远端可达性
// @Tags 同步
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.SyncStatus} "成功"
// @Router /api/v1/sync/status [get]
func (c *SyncController) Status(ctx *gin.Context) {
	status, err := c.SyncService.Status(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// TriggerRun godoc
// @Summary 手工触发整轮同步
// @Description 登记一轮 manual 触发的同步作业并入队，立即返回
// @Tags 同步
// @Produce  json
// @Security ApiKeyAuth
// @Success 202 {object} util.Response{data=model.SyncRun} "已受理"
// @Router /api/v1/sync/runs [post]
func (c *SyncController) TriggerRun(ctx *gin.Context) {
	run, err := c.Orchestrator.StartRun(model.TriggerManual, c.Queue)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, util.Response{
		Code:    http.StatusAccepted,
		Message: "accepted",
		Data:    run,
	})
}

// ListRuns godoc
// @Summary 最近的同步作业
// @Tags 同步
// @Produce  json
// @Security ApiKeyAuth
// @Param   limit query int false "数量上限"
// @Success 200 {object} util.Response{data=[]model.SyncRun} "成功"
// @Router /api/v1/sync/runs [get]
func (c *SyncController) ListRuns(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	runs, err := c.Orchestrator.RecentRuns(limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, runs)
}

// BatchRetry godoc
// @Summary 批量恢复失败同步
// @Description 把所有 failed / pending_retry 的资源重新入队，停机恢复后一次调用整体回血
// @Tags 同步
// @Produce  json
// @Security ApiKeyAuth
// @Success 202 {object} util.Response{data=object} "已受理"
// @Router /api/v1/sync/retry [post]
func (c *SyncController) BatchRetry(ctx *gin.Context) {
	requeued, err := c.SyncService.BatchRecover(ctx.Request.Context(), c.Queue)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, util.Response{
		Code:    http.StatusAccepted,
		Message: "accepted",
		Data:    gin.H{"requeued": requeued},
	})
}
