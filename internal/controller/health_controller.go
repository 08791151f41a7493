package controller

import (
	"net/http"

	"edubank_backend/internal/service"
	"edubank_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB          *gorm.DB
	Redis       *redis.Client
	SyncService *service.SyncService
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, syncService *service.SyncService) *HealthController {
	return &HealthController{DB: db, Redis: rdb, SyncService: syncService}
}

// @Summary 健康检查
// @Description 检查数据库、redis 与远端存储可达性。
// @Description 远端不可达不影响整体 ok：本地副本是权威副本，服务可继续工作
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	components := gin.H{}
	healthy := true

	sqlDB, err := c.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		components["database"] = "down"
		healthy = false
	} else {
		components["database"] = "up"
	}

	if err := c.Redis.Ping(ctx.Request.Context()).Err(); err != nil {
		components["redis"] = "down"
		healthy = false
	} else {
		components["redis"] = "up"
	}

	if c.SyncService.RemoteReachable(ctx.Request.Context()) {
		components["remote_storage"] = "up"
	} else {
		components["remote_storage"] = "degraded"
	}

	if !healthy {
		util.Error(ctx, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
