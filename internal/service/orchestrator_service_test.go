package service

import (
	"context"
	"testing"

	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type orchestratorFixture struct {
	svc    *OrchestratorService
	db     *gorm.DB
	remote *fakeRemote
	local  *LocalStore
	queue  *fakeQueue
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	db := newTestDB(t)
	cfg := newTestConfig(t)
	local := newTestLocalStore(t, cfg)
	remote := newFakeRemote()

	resourceRepo := repository.NewResourceRepository(db)
	syncSvc := NewSyncService(resourceRepo, local, remote, nil, cfg)
	svc := NewOrchestratorService(
		repository.NewSyncRunRepository(db),
		resourceRepo,
		repository.NewResourceTagRepository(db),
		syncSvc,
		cfg,
	)
	return &orchestratorFixture{svc: svc, db: db, remote: remote, local: local, queue: &fakeQueue{}}
}

func TestStartRun_CreatesAndEnqueues(t *testing.T) {
	fx := newOrchestratorFixture(t)

	run, err := fx.svc.StartRun(model.TriggerManual, fx.queue)
	require.NoError(t, err)
	assert.Equal(t, model.RunQueued, run.Status)
	assert.Equal(t, model.TriggerManual, run.Trigger)
	assert.Equal(t, []string{run.ID}, fx.queue.runs)
}

func TestExecuteRun_SyncsAllCandidates(t *testing.T) {
	fx := newOrchestratorFixture(t)
	seedSyncResource(t, fx.db, fx.local, 1, model.SyncPending)
	seedSyncResource(t, fx.db, fx.local, 2, model.SyncPendingRetry)
	seedSyncResource(t, fx.db, fx.local, 3, model.SyncSuccess) // 不是候选

	run, err := fx.svc.StartRun(model.TriggerScheduled, fx.queue)
	require.NoError(t, err)

	require.NoError(t, fx.svc.ExecuteRun(context.Background(), run.ID, fx.queue))

	stored, err := fx.svc.RunRepo.FindByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
	assert.Equal(t, 2, stored.Discovered)
	assert.Equal(t, 2, stored.Stored)
	assert.Zero(t, stored.Failed)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)

	var pending int64
	fx.db.Model(&model.Resource{}).Where("sync_state = ?", model.SyncPending).Count(&pending)
	assert.Zero(t, pending)
}

func TestExecuteRun_LinksTopicHints(t *testing.T) {
	fx := newOrchestratorFixture(t)
	r := seedSyncResource(t, fx.db, fx.local, 4, model.SyncPending)
	// 入库时记录的主题提示（JSON 反序列化后数字是 float64）
	require.NoError(t, fx.db.Model(&model.Resource{}).Where("id = ?", r.ID).
		Update("attributes", model.JSONMap{"topics": []interface{}{float64(3), float64(8)}}).Error)

	run, err := fx.svc.StartRun(model.TriggerManual, fx.queue)
	require.NoError(t, err)
	require.NoError(t, fx.svc.ExecuteRun(context.Background(), run.ID, fx.queue))

	stored, err := fx.svc.RunRepo.FindByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Linked)

	var tags []model.ResourceTag
	require.NoError(t, fx.db.Where("resource_id = ?", r.ID).Order("topic_id").Find(&tags).Error)
	require.Len(t, tags, 2)
	assert.EqualValues(t, 3, tags[0].TopicID)
	assert.EqualValues(t, 8, tags[1].TopicID)
	assert.Equal(t, model.TagBySystem, tags[0].Source)
}

func TestExecuteRun_UnreachableRemoteCountsFailedButRunSucceeds(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.remote.reachable = false
	seedSyncResource(t, fx.db, fx.local, 5, model.SyncPending)

	run, err := fx.svc.StartRun(model.TriggerManual, fx.queue)
	require.NoError(t, err)
	require.NoError(t, fx.svc.ExecuteRun(context.Background(), run.ID, fx.queue))

	// 单资源失败计入计数，整轮作业本身正常完结
	stored, err := fx.svc.RunRepo.FindByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, stored.Status)
	assert.Equal(t, 1, stored.Failed)
	assert.Zero(t, stored.Stored)
}

func TestExecuteRun_CompletedRunIsNoop(t *testing.T) {
	fx := newOrchestratorFixture(t)

	run, err := fx.svc.StartRun(model.TriggerManual, fx.queue)
	require.NoError(t, err)
	require.NoError(t, fx.svc.ExecuteRun(context.Background(), run.ID, fx.queue))

	// at-least-once 投递下的重复执行不得改动已完成的作业
	require.NoError(t, fx.svc.ExecuteRun(context.Background(), run.ID, fx.queue))
	stored, err := fx.svc.RunRepo.FindByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempt)
}

func TestRecentRuns_ClampsLimit(t *testing.T) {
	fx := newOrchestratorFixture(t)
	for i := 0; i < 3; i++ {
		_, err := fx.svc.StartRun(model.TriggerScheduled, fx.queue)
		require.NoError(t, err)
	}

	runs, err := fx.svc.RecentRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = fx.svc.RecentRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
