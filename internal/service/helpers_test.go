package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"edubank_backend/internal/config"
	"edubank_backend/internal/model"
	"edubank_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Log = zap.NewNop()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Resource{},
		&model.ResourceTag{},
		&model.SyncRun{},
	))
	return db
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{
			LocalPath: t.TempDir(),
		},
		Ingest: config.IngestConfig{
			MaxFileSize: 1 << 20,
			OwnerQuota:  3,
		},
		Scanner: config.ScannerConfig{
			Timeout: 5 * time.Second,
		},
		Sync: config.SyncConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			Timeout:         time.Second,
			RunMaxAttempts:  2,
			RunRetryDelay:   time.Minute,
		},
		Download: config.DownloadConfig{
			SigningSecret: "test-download-signing-secret-0001",
			URLTTL:        time.Hour,
		},
	}
}

func newTestLocalStore(t *testing.T, cfg *config.Config) *LocalStore {
	t.Helper()
	local, err := NewLocalStore(&cfg.Storage)
	require.NoError(t, err)
	return local
}

// newPDFReader 最小可嗅探的 PDF 内容
func newPDFReader() *bytes.Reader {
	return bytes.NewReader([]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n"))
}

func seedResource(t *testing.T, db *gorm.DB, seq int, mutate func(*model.Resource)) *model.Resource {
	t.Helper()
	r := &model.Resource{
		Kind:       model.KindPastPaper,
		Title:      fmt.Sprintf("资源 %d", seq),
		LocalPath:  fmt.Sprintf("official/past_paper/math/%d.pdf", seq),
		Visibility: model.VisibilityPublic,
		Signature:  fmt.Sprintf("%064d", seq),
		SizeBytes:  1024,
		MimeType:   "application/pdf",
		SyncState:  model.SyncPending,
	}
	if mutate != nil {
		mutate(r)
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

// fakeScanner 固定返回预设结论
type fakeScanner struct {
	result ScanResult
	calls  int
}

func (f *fakeScanner) Scan(ctx context.Context, r io.Reader) (*ScanResult, error) {
	f.calls++
	io.Copy(io.Discard, r)
	res := f.result
	return &res, nil
}

// fakeQueue 记录入队调用
type fakeQueue struct {
	extractions []string
	syncs       []string
	runs        []string
	delayedRuns []string
	failNext    bool
}

func (f *fakeQueue) EnqueueExtraction(resourceID string) error {
	if f.failNext {
		return errors.New("queue down")
	}
	f.extractions = append(f.extractions, resourceID)
	return nil
}

func (f *fakeQueue) EnqueueSync(resourceID string) error {
	if f.failNext {
		return errors.New("queue down")
	}
	f.syncs = append(f.syncs, resourceID)
	return nil
}

func (f *fakeQueue) EnqueueSyncRun(runID string) error {
	f.runs = append(f.runs, runID)
	return nil
}

func (f *fakeQueue) EnqueueSyncRunIn(runID string, delay time.Duration) error {
	f.delayedRuns = append(f.delayedRuns, runID)
	return nil
}

// fakeRemote 内存对象存储
type fakeRemote struct {
	reachable   bool
	objects     map[string]bool
	uploadErrs  int // 前 N 次上传返回错误
	uploadCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{reachable: true, objects: map[string]bool{}}
}

func (f *fakeRemote) Reachable(ctx context.Context) bool {
	return f.reachable
}

func (f *fakeRemote) Upload(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	f.uploadCalls++
	if f.uploadCalls <= f.uploadErrs {
		return "", errors.New("transient upload failure")
	}
	f.objects[objectName] = true
	return "https://remote/" + objectName, nil
}

func (f *fakeRemote) Stat(ctx context.Context, objectName string) (bool, error) {
	return f.objects[objectName], nil
}

func (f *fakeRemote) Delete(ctx context.Context, objectName string) error {
	delete(f.objects, objectName)
	return nil
}

func (f *fakeRemote) URL(objectName string) string {
	return "https://remote/" + objectName
}
