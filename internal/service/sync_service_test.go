package service

import (
	"context"
	"path/filepath"
	"testing"

	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSyncFixture(t *testing.T) (*SyncService, *gorm.DB, *fakeRemote, *LocalStore) {
	t.Helper()
	db := newTestDB(t)
	cfg := newTestConfig(t)
	local := newTestLocalStore(t, cfg)
	remote := newFakeRemote()
	svc := NewSyncService(repository.NewResourceRepository(db), local, remote, nil, cfg)
	return svc, db, remote, local
}

func seedSyncResource(t *testing.T, db *gorm.DB, local *LocalStore, seq int, state model.SyncState) *model.Resource {
	t.Helper()
	r := seedResource(t, db, seq, func(r *model.Resource) {
		r.SyncState = state
	})
	_, err := local.Save(newPDFReader(), r.LocalPath)
	require.NoError(t, err)
	return r
}

func TestSyncToRemote_Success(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	r := seedSyncResource(t, db, local, 1, model.SyncPending)

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.True(t, remote.objects[filepath.ToSlash(r.LocalPath)])

	var stored model.Resource
	require.NoError(t, db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, model.SyncSuccess, stored.SyncState)
	assert.NotEmpty(t, stored.RemoteURL)
	assert.NotNil(t, stored.LastSyncedAt)
}

func TestSyncToRemote_AlreadySyncedVerifiesOnly(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	r := seedSyncResource(t, db, local, 2, model.SyncSuccess)
	remote.objects[filepath.ToSlash(r.LocalPath)] = true

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)
	assert.Zero(t, remote.uploadCalls, "已同步成功的资源不应重传")
}

func TestSyncToRemote_SyncedButRemoteLostReuploads(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	r := seedSyncResource(t, db, local, 3, model.SyncSuccess)
	// 远端对象丢失

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.EqualValues(t, 1, remote.uploadCalls)
}

func TestSyncToRemote_UnreachableGoesPendingRetry(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	remote.reachable = false
	r := seedSyncResource(t, db, local, 4, model.SyncPending)

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, outcome)
	assert.Zero(t, remote.uploadCalls)

	var stored model.Resource
	require.NoError(t, db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, model.SyncPendingRetry, stored.SyncState)
}

func TestSyncToRemote_TransientFailureRetriesThenSucceeds(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	remote.uploadErrs = 2 // MaxRetries=2，首试+两次重试内恢复
	r := seedSyncResource(t, db, local, 5, model.SyncPending)

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.EqualValues(t, 3, remote.uploadCalls)
}

func TestSyncToRemote_RetriesExhaustedMarksFailed(t *testing.T) {
	svc, db, remote, local := newSyncFixture(t)
	remote.uploadErrs = 100
	r := seedSyncResource(t, db, local, 6, model.SyncPending)

	outcome, err := svc.SyncToRemote(context.Background(), r.ID)
	require.NoError(t, err, "重试耗尽是正常结局而非内部错误")
	assert.Equal(t, OutcomeFailed, outcome)

	var stored model.Resource
	require.NoError(t, db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, model.SyncFailed, stored.SyncState)
}

func TestSyncToRemote_MissingResourceSkipped(t *testing.T) {
	svc, _, _, _ := newSyncFixture(t)

	outcome, err := svc.SyncToRemote(context.Background(), "already-rejected")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestBatchRecover_RequeuesFailedAndPendingRetry(t *testing.T) {
	svc, db, _, local := newSyncFixture(t)
	failed := seedSyncResource(t, db, local, 7, model.SyncFailed)
	retrying := seedSyncResource(t, db, local, 8, model.SyncPendingRetry)
	seedSyncResource(t, db, local, 9, model.SyncSuccess)

	queue := &fakeQueue{}
	n, err := svc.BatchRecover(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{failed.ID, retrying.ID}, queue.syncs)

	// failed 被统一归位到 pending_retry
	var stored model.Resource
	require.NoError(t, db.First(&stored, "id = ?", failed.ID).Error)
	assert.Equal(t, model.SyncPendingRetry, stored.SyncState)
}

func TestRemoteReachable_NoCacheFallsThrough(t *testing.T) {
	svc, _, remote, _ := newSyncFixture(t)

	assert.True(t, svc.RemoteReachable(context.Background()))
	remote.reachable = false
	// 无 redis 时不缓存，每次都实探
	assert.False(t, svc.RemoteReachable(context.Background()))
}

func TestStatus_CountsByState(t *testing.T) {
	svc, db, _, local := newSyncFixture(t)
	seedSyncResource(t, db, local, 10, model.SyncPending)
	seedSyncResource(t, db, local, 11, model.SyncPending)
	seedSyncResource(t, db, local, 12, model.SyncSuccess)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.Counts[model.SyncPending])
	assert.EqualValues(t, 1, status.Counts[model.SyncSuccess])
	assert.True(t, status.RemoteReachable)
}
