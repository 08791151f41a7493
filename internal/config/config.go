package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Download  DownloadConfig  `mapstructure:"download"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Redis     RedisConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	// LocalPath 本地权威副本根目录，官方资源按 kind/subject 分区，
	// 用户上传按 owner_id 隔离到独立子树
	LocalPath string `mapstructure:"local_path"`

	// 远端对象存储类型：minio 或 oss
	RemoteType    string `mapstructure:"remote_type"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`

	// EncryptionKey 远端静态加密密钥（SSE-C，32字节），
	// 与下载签名密钥必须不同，一个密钥不做两种用途
	EncryptionKey string `mapstructure:"encryption_key"`
}

type IngestConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size"` // 单文件大小上限（字节）
	OwnerQuota  int   `mapstructure:"owner_quota"`   // 每个上传者的资源数量配额
}

type ScannerConfig struct {
	// ClamdAddr clamd 扫描守护进程地址，如 tcp://127.0.0.1:3310
	ClamdAddr string `mapstructure:"clamd_addr"`
	// FailClosed 扫描服务不可用时是否拒绝入库（默认 false：放行并标记人工复核）
	FailClosed bool          `mapstructure:"fail_closed"`
	Timeout    time.Duration `mapstructure:"timeout_seconds"`
}

type ExtractConfig struct {
	// OCRThreshold 原生提取字符数低于该阈值时降级为 OCR
	OCRThreshold int           `mapstructure:"ocr_threshold"`
	Timeout      time.Duration `mapstructure:"timeout_seconds"`
	// OCRLanguages tesseract 识别语言，如 eng、eng+chi_sim
	OCRLanguages []string `mapstructure:"ocr_languages"`
	// RasterDPI 扫描件光栅化分辨率
	RasterDPI int `mapstructure:"raster_dpi"`
}

type SyncConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`       // 单次传输的退避重试上限
	InitialInterval time.Duration `mapstructure:"initial_interval"`  // 退避起始间隔
	Timeout         time.Duration `mapstructure:"timeout_seconds"`   // 单次传输超时
	RunMaxAttempts  int           `mapstructure:"run_max_attempts"`  // 整轮同步的重试上限
	RunRetryDelay   time.Duration `mapstructure:"run_retry_minutes"` // 整轮同步重试间隔
	DailyCron       string        `mapstructure:"daily_cron"`        // 每日定时同步表达式
}

type DownloadConfig struct {
	// SigningSecret 下载链接 HMAC 签名密钥，与其他密钥严格分离
	SigningSecret string        `mapstructure:"signing_secret"`
	URLTTL        time.Duration `mapstructure:"url_ttl_minutes"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EDU_BANK")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage / 远端对象存储
	viper.BindEnv("storage.remote_type", "STORAGE_REMOTE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.encryption_key", "STORAGE_ENCRYPTION_KEY")

	// 病毒扫描
	viper.BindEnv("scanner.clamd_addr", "CLAMD_ADDR")
	viper.BindEnv("scanner.fail_closed", "SCANNER_FAIL_CLOSED")

	// 下载签名
	viper.BindEnv("download.signing_secret", "DOWNLOAD_SIGNING_SECRET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Scanner.Timeout = cfg.Scanner.Timeout * time.Second
	cfg.Extract.Timeout = cfg.Extract.Timeout * time.Second
	cfg.Sync.Timeout = cfg.Sync.Timeout * time.Second
	cfg.Sync.RunRetryDelay = cfg.Sync.RunRetryDelay * time.Minute
	cfg.Download.URLTTL = cfg.Download.URLTTL * time.Minute

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.LocalPath != "" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.MaxFileSize <= 0 {
		cfg.Ingest.MaxFileSize = 50 << 20 // 50 MiB
	}
	if cfg.Ingest.OwnerQuota <= 0 {
		cfg.Ingest.OwnerQuota = 100
	}
	if cfg.Extract.OCRThreshold <= 0 {
		cfg.Extract.OCRThreshold = 100
	}
	if cfg.Extract.Timeout <= 0 {
		cfg.Extract.Timeout = 120 * time.Second
	}
	if cfg.Extract.RasterDPI <= 0 {
		cfg.Extract.RasterDPI = 200
	}
	if len(cfg.Extract.OCRLanguages) == 0 {
		cfg.Extract.OCRLanguages = []string{"eng"}
	}
	if cfg.Scanner.Timeout <= 0 {
		cfg.Scanner.Timeout = 30 * time.Second
	}
	if cfg.Sync.MaxRetries <= 0 {
		cfg.Sync.MaxRetries = 5
	}
	if cfg.Sync.InitialInterval <= 0 {
		cfg.Sync.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Sync.Timeout <= 0 {
		cfg.Sync.Timeout = 60 * time.Second
	}
	if cfg.Sync.RunMaxAttempts <= 0 {
		cfg.Sync.RunMaxAttempts = 3
	}
	if cfg.Sync.RunRetryDelay <= 0 {
		cfg.Sync.RunRetryDelay = 30 * time.Minute
	}
	if cfg.Sync.DailyCron == "" {
		cfg.Sync.DailyCron = "0 3 * * *" // 每天凌晨3点
	}
	if cfg.Download.URLTTL <= 0 {
		cfg.Download.URLTTL = time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if len(cfg.Download.SigningSecret) < 32 {
		return fmt.Errorf("download signing secret is too short (%d chars), must be at least 32 characters", len(cfg.Download.SigningSecret))
	}
	if cfg.Download.SigningSecret == cfg.JWT.Secret {
		return fmt.Errorf("download signing secret must differ from JWT secret")
	}

	// SSE-C 要求 32 字节密钥；签名密钥与加密密钥不得混用
	if cfg.Storage.RemoteType == "minio" {
		if len(cfg.Storage.EncryptionKey) != 32 {
			return fmt.Errorf("storage encryption key must be exactly 32 bytes, got %d", len(cfg.Storage.EncryptionKey))
		}
		if cfg.Storage.EncryptionKey == cfg.Download.SigningSecret {
			return fmt.Errorf("storage encryption key must differ from download signing secret")
		}
	}

	return nil
}
