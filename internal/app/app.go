package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edubank_backend/internal/config"
	"edubank_backend/internal/controller"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/service"
	"edubank_backend/internal/task"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/database"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"
	"edubank_backend/pkg/security"
	"edubank_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services   *services
	taskClient *task.Client
	worker     *task.Worker
	scheduler  *task.Scheduler
	tracer     *sdktrace.TracerProvider
}

type repositories struct {
	user        *repository.UserRepository
	resource    *repository.ResourceRepository
	resourceTag *repository.ResourceTagRepository
	syncRun     *repository.SyncRunRepository
}

type services struct {
	auth         *service.AuthService
	ingest       *service.IngestService
	moderation   *service.ModerationService
	download     *service.DownloadService
	sync         *service.SyncService
	orchestrator *service.OrchestratorService

	local     *service.LocalStore
	remote    service.RemoteProvider
	scanner   service.Scanner
	extractor service.Extractor
}

type controllers struct {
	auth       *controller.AuthController
	resource   *controller.ResourceController
	moderation *controller.ModerationController
	sync       *controller.SyncController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		resource:    repository.NewResourceRepository(db),
		resourceTag: repository.NewResourceTagRepository(db),
		syncRun:     repository.NewSyncRunRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	local, err := service.NewLocalStore(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.local = local

	remote, err := service.NewRemoteProvider(cfg)
	if err != nil {
		return nil, err
	}
	s.remote = remote

	s.scanner = service.NewClamdScanner(&cfg.Scanner)
	s.extractor = service.NewPDFExtractor(&cfg.Extract)

	s.auth = service.NewAuthService(repos.user, cfg)
	s.download = service.NewDownloadService(cfg)
	s.moderation = service.NewModerationService(repos.resource, repos.resourceTag, local)
	s.sync = service.NewSyncService(repos.resource, local, remote, rdb, cfg)
	s.orchestrator = service.NewOrchestratorService(repos.syncRun, repos.resource, repos.resourceTag, s.sync, cfg)
	s.ingest = service.NewIngestService(repos.resource, local, s.scanner, a.taskClient, cfg)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		resource:   controller.NewResourceController(s.ingest, s.moderation, s.download, s.local),
		moderation: controller.NewModerationController(s.moderation),
		sync:       controller.NewSyncController(s.sync, s.orchestrator, a.taskClient),
		health:     controller.NewHealthController(db, rdb, s.sync),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	// 中间件通过 context 取配置
	router.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})

	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	// 仅迁移模式不再初始化队列与服务
	if cfg.MigrateOnly {
		return app
	}

	// ffmpeg 缺失时视频元数据与缩略图会退化，启动时提示
	if _, err := util.GetFFmpegVersion(); err != nil {
		logger.Log.Warn("ffmpeg 不可用，视频元数据探测将被跳过", zap.Error(err))
	}

	app.taskClient = task.NewClient(cfg)

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services

	app.worker = task.NewWorker(cfg, &task.WorkerDeps{
		ResourceRepo: repos.resource,
		Local:        services.local,
		Extractor:    services.extractor,
		Sync:         services.sync,
		Orchestrator: services.orchestrator,
		Queue:        app.taskClient,
	})

	scheduler, err := task.NewScheduler(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize scheduler", zap.Error(err))
	}
	app.scheduler = scheduler

	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("resource-bank", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, repos, cfg)

	return app
}

func (a *App) Run() {
	if err := a.worker.Start(); err != nil {
		logger.Log.Fatal("Failed to start task worker", zap.Error(err))
	}
	if err := a.scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停定时器与 worker，在途任务留在 redis 供重启后继续
	a.scheduler.Shutdown()
	a.worker.Shutdown()
	a.taskClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
