package app

import (
	"edubank_backend/internal/config"
	"edubank_backend/internal/middleware"
	"edubank_backend/internal/model"
	"edubank_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由（无需登录）
	a.registerPublicRoutes(router, c)

	// 2. 资源路由：读接口允许游客，写接口强制认证
	a.registerResourceRoutes(router, c, repos)

	// 3. 审核路由：moderator / admin
	a.registerModerationRoutes(router, c, repos)

	// 4. 同步运维路由：仅 admin
	a.registerSyncRoutes(router, c, repos)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api/v1")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
	router.GET("/health", c.health.HealthCheck)
}

func (a *App) registerResourceRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	resources := router.Group("/api/v1/resources")
	resources.Use(middleware.ActivityMiddleware(repos.user))
	{
		// 列表与详情对游客开放（仅见公开资源），登录用户附带本人上传
		resources.GET("", middleware.OptionalAuthMiddleware(), c.resource.List)
		resources.GET("/:id", middleware.OptionalAuthMiddleware(), c.resource.Get)
		resources.POST("/:id/download-url", middleware.OptionalAuthMiddleware(), c.resource.IssueDownloadURL)

		// 下载走签名参数校验，不依赖登录态
		resources.GET("/:id/download", c.resource.Download)

		authorized := resources.Group("")
		authorized.Use(middleware.AuthMiddleware())
		{
			authorized.POST("", c.resource.Upload)
			authorized.POST("/:id/publish", c.resource.Publish)
		}
	}

	// 主题选材：公开资源按相关度排序
	router.GET("/api/v1/topics/:topicId/resources", c.resource.ListByTopic)

	profile := router.Group("/api/v1")
	profile.Use(middleware.AuthMiddleware(), middleware.ActivityMiddleware(repos.user))
	{
		profile.GET("/profile", c.auth.GetProfile)
	}
}

func (a *App) registerModerationRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	moderation := router.Group("/api/v1/moderation")
	moderation.Use(
		middleware.AuthMiddleware(),
		middleware.RoleMiddleware(model.Moderator, model.Admin),
		middleware.ActivityMiddleware(repos.user),
	)
	{
		moderation.GET("/pending", c.moderation.ListPending)
		moderation.POST("/:id/approve", c.moderation.Approve)
		moderation.POST("/:id/reject", c.moderation.Reject)
		moderation.PATCH("/:id/metadata", c.moderation.EditMetadata)
	}
}

func (a *App) registerSyncRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	sync := router.Group("/api/v1/sync")
	sync.Use(
		middleware.AuthMiddleware(),
		middleware.RoleMiddleware(model.Admin),
	)
	{
		sync.GET("/status", c.sync.Status)
		sync.GET("/runs", c.sync.ListRuns)
		sync.POST("/runs", c.sync.TriggerRun)
		sync.POST("/retry", c.sync.BatchRetry)
	}
}
