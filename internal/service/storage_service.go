package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/internal/util"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// LocalStore 本地磁盘权威副本。
// 官方资源按 kind/subject 分区，用户上传隔离到 owner_{id} 子树，
// 文件名只使用资源ID，不接受任何用户可控路径成分。
type LocalStore struct {
	Root string
}

func NewLocalStore(cfg *config.StorageConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{Root: cfg.LocalPath}, nil
}

var subjectCodePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// RelPath 生成资源的相对存储路径
func (s *LocalStore) RelPath(kind model.ResourceKind, ownerID *uint, subjectCode, resourceID, ext string) string {
	name := resourceID + strings.ToLower(ext)
	if ownerID != nil {
		return filepath.Join("uploads", fmt.Sprintf("owner_%d", *ownerID), name)
	}
	subject := subjectCodePattern.ReplaceAllString(subjectCode, "")
	if subject == "" {
		subject = "general"
	}
	return filepath.Join("official", string(kind), subject, name)
}

// SaveResult 本地落盘结果
type SaveResult struct {
	RelPath   string
	Signature string
	Size      int64
}

// Save 流式写入：临时文件 + 边写边算 SHA-256 + fsync + 原子改名。
// 任一步失败临时文件即被清理，存储树中不会留下半写文件。
func (s *LocalStore) Save(reader io.Reader, relPath string) (*SaveResult, error) {
	fullPath := filepath.Join(s.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}

	tee := util.NewTeeSignatureWriter(f)
	if _, err := io.Copy(tee, reader); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	return &SaveResult{
		RelPath:   relPath,
		Signature: tee.Signature(),
		Size:      tee.Size(),
	}, nil
}

// SaveTemp 先落到暂存区并计算签名。病毒扫描与去重检查都发生在
// 暂存副本上，任何一道门拒绝时正式存储树不会出现该文件。
func (s *LocalStore) SaveTemp(reader io.Reader) (*SaveResult, error) {
	tmpDir := filepath.Join(s.Root, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(tmpDir, "ingest_*")
	if err != nil {
		return nil, err
	}
	tmpPath := f.Name()

	tee := util.NewTeeSignatureWriter(f)
	if _, err := io.Copy(tee, reader); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	return &SaveResult{
		RelPath:   filepath.Join("tmp", filepath.Base(tmpPath)),
		Signature: tee.Signature(),
		Size:      tee.Size(),
	}, nil
}

// Promote 把暂存文件原子移动到正式分区路径
func (s *LocalStore) Promote(tmpRelPath, relPath string) error {
	fullPath := filepath.Join(s.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(s.Root, tmpRelPath), fullPath)
}

func (s *LocalStore) Open(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(s.Root, relPath))
}

func (s *LocalStore) FullPath(relPath string) string {
	return filepath.Join(s.Root, relPath)
}

// Remove 删除本地副本；文件已不存在视为成功（拒绝操作可重试）
func (s *LocalStore) Remove(relPath string) error {
	err := os.Remove(filepath.Join(s.Root, relPath))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// RemoteProvider 远端对象存储接口
type RemoteProvider interface {
	// Reachable 可达性探测；不可达时同步器走 pending_retry 而非硬失败
	Reachable(ctx context.Context) bool
	// Upload 上传本地文件并请求静态加密，返回远端标识
	Upload(ctx context.Context, objectName, localPath, contentType string) (string, error)
	// Stat 校验远端对象存在（幂等重同步用校验代替重传）
	Stat(ctx context.Context, objectName string) (bool, error)
	Delete(ctx context.Context, objectName string) error
	URL(objectName string) string
}

// MinioProvider MinIO 实现，SSE-C 客户端提供密钥的静态加密
type MinioProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
	sse    encrypt.ServerSide
}

func NewMinioProvider(cfg *config.StorageConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}

	// 静态加密密钥独立于签名密钥，固定 32 字节（config 已校验）
	sse, err := encrypt.NewSSEC([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("init SSE-C: %w", err)
	}

	return &MinioProvider{Config: cfg, Client: client, sse: sse}, nil
}

func (p *MinioProvider) Reachable(ctx context.Context) bool {
	exists, err := p.Client.BucketExists(ctx, p.Config.MinioBucket)
	return err == nil && exists
}

func (p *MinioProvider) Upload(ctx context.Context, objectName, localPath, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Config.MinioBucket, objectName, localPath, minio.PutObjectOptions{
		ContentType:          contentType,
		ServerSideEncryption: p.sse,
	})
	if err != nil {
		return "", err
	}
	return p.URL(objectName), nil
}

func (p *MinioProvider) Stat(ctx context.Context, objectName string) (bool, error) {
	_, err := p.Client.StatObject(ctx, p.Config.MinioBucket, objectName, minio.StatObjectOptions{
		ServerSideEncryption: p.sse,
	})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *MinioProvider) Delete(ctx context.Context, objectName string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, objectName, minio.RemoveObjectOptions{})
}

func (p *MinioProvider) URL(objectName string) string {
	return "/" + p.Config.MinioBucket + "/" + objectName
}

// OSSProvider 阿里云OSS实现，服务端 AES256 静态加密
type OSSProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSProvider(cfg *config.StorageConfig) (*OSSProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSProvider{Config: cfg, Client: client}, nil
}

func (p *OSSProvider) Reachable(ctx context.Context) bool {
	_, err := p.Client.GetBucketInfo(p.Config.OSSBucket)
	return err == nil
}

func (p *OSSProvider) Upload(ctx context.Context, objectName, localPath, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	err = bucket.PutObjectFromFile(objectName, localPath,
		oss.ContentType(contentType),
		oss.ServerSideEncryption("AES256"),
	)
	if err != nil {
		return "", err
	}
	return p.URL(objectName), nil
}

func (p *OSSProvider) Stat(ctx context.Context, objectName string) (bool, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return false, err
	}
	return bucket.IsObjectExist(objectName)
}

func (p *OSSProvider) Delete(ctx context.Context, objectName string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(objectName)
}

func (p *OSSProvider) URL(objectName string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, objectName)
}

// NewRemoteProvider 按配置构造远端存储
func NewRemoteProvider(cfg *config.Config) (RemoteProvider, error) {
	switch cfg.Storage.RemoteType {
	case util.RemoteMinio:
		return NewMinioProvider(&cfg.Storage)
	case util.RemoteOSS:
		return NewOSSProvider(&cfg.Storage)
	default:
		return nil, fmt.Errorf("unknown remote storage type: %q", cfg.Storage.RemoteType)
	}
}
