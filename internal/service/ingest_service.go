package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/logger"
	"edubank_backend/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestInput 单次入库请求。DeclaredSize 来自请求头声明，
// 超限文件在读取任何内容字节之前即被拒绝。
type IngestInput struct {
	Kind         model.ResourceKind
	Title        string
	SourceURL    string
	SubjectCode  string
	OwnerID      *uint // nil 表示系统/官方入库
	Filename     string
	DeclaredSize int64
	Reader       io.Reader
	Attributes   model.JSONMap
}

// IngestService 入库校验器。所有资源（官方抓取与用户上传）都经过
// 同一条门控流水线：尺寸→类型→病毒→配额/去重→落盘。
// 任何一道门拒绝时正式存储树与数据库都不会留下痕迹。
type IngestService struct {
	ResourceRepo *repository.ResourceRepository
	Local        *LocalStore
	Scanner      Scanner
	Queue        TaskQueue
	Cfg          *config.Config
}

func NewIngestService(resourceRepo *repository.ResourceRepository, local *LocalStore, scanner Scanner, queue TaskQueue, cfg *config.Config) *IngestService {
	return &IngestService{
		ResourceRepo: resourceRepo,
		Local:        local,
		Scanner:      scanner,
		Queue:        queue,
		Cfg:          cfg,
	}
}

// Ingest 执行完整入库流水线。
// 去重命中返回既有资源与 *util.DuplicateError，调用方自行决定
// 对用户是报告还是静默跳过。
func (s *IngestService) Ingest(ctx context.Context, input *IngestInput) (*model.Resource, error) {
	if !input.Kind.Valid() {
		monitoring.IngestCounter.WithLabelValues("rejected").Inc()
		return nil, util.ErrInvalidKind
	}

	// 尺寸门：先看声明大小，超限时一个内容字节都不读
	maxSize := s.Cfg.Ingest.MaxFileSize
	if input.DeclaredSize > maxSize {
		monitoring.IngestCounter.WithLabelValues("rejected").Inc()
		return nil, util.ErrFileTooLarge
	}

	// 配额门：属主配额已满时在读取内容前即拒绝，重复内容也不例外。
	// 这里是无锁预检，并发竞态由 CreateWithinQuota 的事务内计数兜底
	if input.OwnerID != nil {
		count, err := s.ResourceRepo.CountByOwner(*input.OwnerID)
		if err != nil {
			return nil, err
		}
		if count >= int64(s.Cfg.Ingest.OwnerQuota) {
			monitoring.IngestCounter.WithLabelValues("rejected").Inc()
			return nil, util.ErrQuotaExceeded
		}
	}

	// 类型门：嗅探前 512 字节做深度 MIME 检测，不信任扩展名
	br := bufio.NewReader(input.Reader)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF {
		return nil, err
	}
	var mimeType string
	if allowed := allowedMimes(input.Kind); allowed != nil {
		mimeType, err = util.ValidateMimeType(bytes.NewReader(head), allowed)
		if err != nil {
			monitoring.IngestCounter.WithLabelValues("rejected").Inc()
			return nil, util.ErrInvalidKind
		}
	} else {
		// article / user_upload 不限制具体类型
		mimeType = http.DetectContentType(head)
	}

	// 落到暂存区边写边算签名；LimitReader 兜底声明大小造假
	saved, err := s.Local.SaveTemp(io.LimitReader(br, maxSize+1))
	if err != nil {
		return nil, err
	}
	tmpRelPath := saved.RelPath
	if saved.Size > maxSize {
		s.Local.Remove(tmpRelPath)
		monitoring.IngestCounter.WithLabelValues("rejected").Inc()
		return nil, util.ErrFileTooLarge
	}

	// 病毒门：对暂存副本扫描，检出立即删除
	needsReview, err := s.scanGate(ctx, tmpRelPath)
	if err != nil {
		s.Local.Remove(tmpRelPath)
		return nil, err
	}

	// 去重预检：竞态窗口由签名唯一索引与事务内复查兜底
	if existing, err := s.ResourceRepo.FindBySignature(saved.Signature); err != nil {
		s.Local.Remove(tmpRelPath)
		return nil, err
	} else if existing != nil {
		return s.duplicateHit(existing, tmpRelPath)
	}

	resource := s.buildResource(input, saved, mimeType, needsReview)

	relPath := s.Local.RelPath(input.Kind, input.OwnerID, input.SubjectCode,
		resource.ID, filepath.Ext(input.Filename))
	if err := s.Local.Promote(tmpRelPath, relPath); err != nil {
		s.Local.Remove(tmpRelPath)
		return nil, err
	}
	resource.LocalPath = relPath

	if input.Kind == model.KindVideo && util.IsVideo(resource.MimeType) {
		s.attachVideoInfo(resource)
	}

	if err := s.ResourceRepo.CreateWithinQuota(resource, s.Cfg.Ingest.OwnerQuota); err != nil {
		s.Local.Remove(relPath)
		if dup := asDuplicate(err); dup != nil {
			if existing, findErr := s.ResourceRepo.FindByID(dup.ExistingID); findErr == nil {
				return s.duplicateHit(existing, "")
			}
			return nil, dup
		}
		if errors.Is(err, util.ErrQuotaExceeded) {
			monitoring.IngestCounter.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	s.enqueueFollowups(resource)
	monitoring.IngestCounter.WithLabelValues("accepted").Inc()
	logger.Log.Info("资源入库完成",
		zap.String("resource_id", resource.ID),
		zap.String("kind", string(input.Kind)),
		zap.String("signature", resource.Signature),
		zap.Int64("size", resource.SizeBytes),
		zap.Bool("needs_review", needsReview))
	return resource, nil
}

// scanGate 病毒门。三种结论分别处理：
// 检出→删除并报安全事件；不可用→按配置拒绝或放行并标记人工复核。
func (s *IngestService) scanGate(ctx context.Context, tmpRelPath string) (bool, error) {
	f, err := s.Local.Open(tmpRelPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanCtx, cancel := context.WithTimeout(ctx, s.Cfg.Scanner.Timeout)
	defer cancel()

	result, err := s.Scanner.Scan(scanCtx, f)
	if err != nil {
		return false, err
	}

	switch result.Verdict {
	case VerdictInfected:
		monitoring.IngestCounter.WithLabelValues("infected").Inc()
		logger.Log.Error("上传文件检出病毒",
			zap.String("signature_name", result.SignatureName))
		return false, &util.MalwareError{SignatureName: result.SignatureName}
	case VerdictUnavailable:
		if s.Cfg.Scanner.FailClosed {
			monitoring.IngestCounter.WithLabelValues("rejected").Inc()
			return false, util.ErrScannerUnavailable
		}
		return true, nil
	default:
		return false, nil
	}
}

// duplicateHit 去重命中：刷新既有行的 updated_at 心跳，丢弃新副本
func (s *IngestService) duplicateHit(existing *model.Resource, tmpRelPath string) (*model.Resource, error) {
	if tmpRelPath != "" {
		s.Local.Remove(tmpRelPath)
	}
	if err := s.ResourceRepo.TouchUpdatedAt(existing.ID); err != nil {
		logger.Log.Warn("去重心跳刷新失败",
			zap.String("resource_id", existing.ID), zap.Error(err))
	}
	monitoring.IngestCounter.WithLabelValues("duplicate").Inc()
	return existing, &util.DuplicateError{ExistingID: existing.ID}
}

func (s *IngestService) buildResource(input *IngestInput, saved *SaveResult, mimeType string, needsReview bool) *model.Resource {
	resource := &model.Resource{
		Kind:              input.Kind,
		Title:             strings.TrimSpace(input.Title),
		SourceURL:         input.SourceURL,
		OwnerID:           input.OwnerID,
		Signature:         saved.Signature,
		SizeBytes:         saved.Size,
		MimeType:          mimeType,
		SyncState:         model.SyncPending,
		NeedsManualReview: needsReview,
		Attributes:        input.Attributes,
	}
	resource.ID = uuid.New().String()

	if resource.Title == "" {
		resource.Title = input.Filename
	}

	if input.OwnerID == nil {
		// 官方资源直接公开，无需人工审核
		resource.Visibility = model.VisibilityPublic
		resource.ModerationApproved = true
	} else {
		resource.Visibility = model.VisibilityPendingReview
	}
	return resource
}

// attachVideoInfo 视频资源补充时长等元数据，失败不阻断入库
func (s *IngestService) attachVideoInfo(resource *model.Resource) {
	info, err := util.GetVideoInfo(s.Local.FullPath(resource.LocalPath))
	if err != nil {
		logger.Log.Warn("视频元数据探测失败",
			zap.String("resource_id", resource.ID), zap.Error(err))
		return
	}
	if resource.Attributes == nil {
		resource.Attributes = model.JSONMap{}
	}
	resource.Attributes["duration_seconds"] = info.Duration
	resource.Attributes["width"] = info.Width
	resource.Attributes["height"] = info.Height

	thumbRel := resource.LocalPath + ".thumb.jpg"
	if err := util.GenerateThumbnail(s.Local.FullPath(resource.LocalPath), s.Local.FullPath(thumbRel), "00:00:01"); err != nil {
		logger.Log.Warn("视频缩略图生成失败",
			zap.String("resource_id", resource.ID), zap.Error(err))
		return
	}
	resource.Attributes["thumbnail"] = thumbRel
}

// enqueueFollowups 入队后台提取与同步。入队失败只记日志：
// 资源停留在 pending，整轮同步作业会重新发现它。
func (s *IngestService) enqueueFollowups(resource *model.Resource) {
	if resource.MimeType == util.MimePDF {
		if err := s.Queue.EnqueueExtraction(resource.ID); err != nil {
			logger.Log.Error("提取任务入队失败",
				zap.String("resource_id", resource.ID), zap.Error(err))
		}
	}
	if err := s.Queue.EnqueueSync(resource.ID); err != nil {
		logger.Log.Error("同步任务入队失败",
			zap.String("resource_id", resource.ID), zap.Error(err))
	}
}

// allowedMimes 各资源类型接受的 MIME 前缀；nil 表示不限制
func allowedMimes(kind model.ResourceKind) []string {
	switch kind {
	case model.KindVideo:
		return []string{util.MimeVideo}
	case model.KindSyllabus, model.KindTextbook, model.KindPastPaper:
		// 官方文档类要求 PDF；部分抓取源给出 octet-stream，放行后由提取环节验证
		return []string{util.MimePDF, util.MimeOctetStream}
	}
	return nil
}

func asDuplicate(err error) *util.DuplicateError {
	var dup *util.DuplicateError
	if errors.As(err, &dup) {
		return dup
	}
	return nil
}
