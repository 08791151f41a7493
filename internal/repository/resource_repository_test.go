package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"edubank_backend/internal/model"
	"edubank_backend/internal/util"
	"edubank_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
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

func makeResource(sig string, ownerID *uint) *model.Resource {
	return &model.Resource{
		Kind:      model.KindUserUpload,
		Title:     "notes",
		LocalPath: "uploads/" + sig[:8],
		OwnerID:   ownerID,
		Signature: sig,
		SizeBytes: 1024,
		MimeType:  "application/pdf",
		SyncState: model.SyncPending,
	}
}

func sig(n int) string {
	return fmt.Sprintf("%064d", n)
}

func TestCreateWithinQuota_DuplicateSignature(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))
	owner := uint(1)

	first := makeResource(sig(1), &owner)
	require.NoError(t, repo.CreateWithinQuota(first, 10))

	second := makeResource(sig(1), &owner)
	err := repo.CreateWithinQuota(second, 10)
	require.Error(t, err)

	var dup *util.DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.True(t, errors.Is(err, util.ErrDuplicateResource))

	var count int64
	repo.DB.Model(&model.Resource{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateWithinQuota_QuotaBoundary(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))
	owner := uint(7)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateWithinQuota(makeResource(sig(i), &owner), 3))
	}

	err := repo.CreateWithinQuota(makeResource(sig(99), &owner), 3)
	assert.True(t, errors.Is(err, util.ErrQuotaExceeded))

	// 其他属主不受影响
	other := uint(8)
	require.NoError(t, repo.CreateWithinQuota(makeResource(sig(100), &other), 3))

	// 系统资源（无属主）不计配额
	require.NoError(t, repo.CreateWithinQuota(makeResource(sig(101), nil), 3))
}

func TestFindBySignature_Miss(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	got, err := repo.FindBySignature(sig(42))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTouchUpdatedAt(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	r := makeResource(sig(5), nil)
	require.NoError(t, repo.CreateWithinQuota(r, 1))

	before, err := repo.FindByID(r.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.TouchUpdatedAt(r.ID))

	after, err := repo.FindByID(r.ID)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestMarkSynced(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	r := makeResource(sig(6), nil)
	require.NoError(t, repo.CreateWithinQuota(r, 1))

	now := time.Now()
	require.NoError(t, repo.MarkSynced(r.ID, "https://bucket/obj", now))

	got, err := repo.FindByID(r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSuccess, got.SyncState)
	assert.Equal(t, "https://bucket/obj", got.RemoteURL)
	require.NotNil(t, got.LastSyncedAt)
}

func TestSetSyncStateAndCounts(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	a := makeResource(sig(10), nil)
	b := makeResource(sig(11), nil)
	require.NoError(t, repo.CreateWithinQuota(a, 1))
	require.NoError(t, repo.CreateWithinQuota(b, 1))
	require.NoError(t, repo.SetSyncState(a.ID, model.SyncFailed))

	counts, err := repo.CountBySyncState()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.SyncFailed])
	assert.Equal(t, int64(1), counts[model.SyncPending])

	failed, err := repo.FindBySyncStates(model.SyncFailed, model.SyncPendingRetry)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)
}

func TestUpdateFields_NotFound(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	err := repo.UpdateFields(uuid.New().String(), map[string]interface{}{"title": "x"})
	assert.True(t, errors.Is(err, util.ErrResourceNotFound))
}

func TestDelete_HardDelete(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))

	r := makeResource(sig(20), nil)
	require.NoError(t, repo.CreateWithinQuota(r, 1))
	require.NoError(t, repo.Delete(r.ID))

	_, err := repo.FindByID(r.ID)
	assert.True(t, errors.Is(err, util.ErrResourceNotFound))

	// 同内容可重新提交：签名唯一索引已随行删除释放
	again := makeResource(sig(20), nil)
	assert.NoError(t, repo.CreateWithinQuota(again, 1))
}

func TestListVisible(t *testing.T) {
	repo := NewResourceRepository(newTestDB(t))
	owner := uint(3)
	stranger := uint(4)

	pub := makeResource(sig(30), nil)
	pub.Visibility = model.VisibilityPublic
	require.NoError(t, repo.CreateWithinQuota(pub, 1))

	priv := makeResource(sig(31), &owner)
	priv.Visibility = model.VisibilityPrivate
	require.NoError(t, repo.CreateWithinQuota(priv, 10))

	// 游客只见公开
	list, total, err := repo.ListVisible(nil, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, pub.ID, list[0].ID)

	// 属主额外看到自己的私有资源
	_, total, err = repo.ListVisible(&owner, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// 他人与游客一致
	_, total, err = repo.ListVisible(&stranger, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
