// @title EduBank 资源库 API
// @version 1.0
// @description 教育资源库后端：统一入库校验、内容去重、审核与远端同步。

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"log"

	"edubank_backend/internal/app"
	"edubank_backend/internal/config"
	"edubank_backend/pkg/configwatcher"
	"edubank_backend/pkg/logger"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 配置热更新：仅运行参数即时生效，密钥与连接类配置需重启
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(raw interface{}) {
		newCfg, ok := raw.(*config.Config)
		if !ok {
			return
		}
		cfg.Ingest = newCfg.Ingest
		cfg.Scanner.FailClosed = newCfg.Scanner.FailClosed
		cfg.Extract = newCfg.Extract
		cfg.Sync = newCfg.Sync
		cfg.Download.URLTTL = newCfg.Download.URLTTL
		logger.Log.Info("配置已热更新")
	})

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
