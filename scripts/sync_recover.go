// 手动触发同步批量恢复脚本
//
// 该功能已集成到主应用的运维接口（POST /api/v1/sync/retry）。
// 此脚本仅用于手动触发，例如远端存储长时间停机恢复后、
// 主应用不便登录管理员账号时。
//
// 用法: go run scripts/sync_recover.go

package main

import (
	"context"
	"log"

	"edubank_backend/internal/config"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/service"
	"edubank_backend/internal/task"
	"edubank_backend/pkg/database"
	"edubank_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis 连接失败: %v", err)
	}

	local, err := service.NewLocalStore(&cfg.Storage)
	if err != nil {
		log.Fatalf("本地存储初始化失败: %v", err)
	}

	remote, err := service.NewRemoteProvider(cfg)
	if err != nil {
		log.Fatalf("远端存储初始化失败: %v", err)
	}

	resourceRepo := repository.NewResourceRepository(db)
	syncService := service.NewSyncService(resourceRepo, local, remote, rdb, cfg)

	queue := task.NewClient(cfg)
	defer queue.Close()

	log.Println("手动触发同步批量恢复...")
	requeued, err := syncService.BatchRecover(context.Background(), queue)
	if err != nil {
		log.Fatalf("批量恢复失败: %v", err)
	}
	log.Printf("完成！重新入队 %d 个资源", requeued)
}
