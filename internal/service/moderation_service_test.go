package service

import (
	"errors"
	"os"
	"testing"

	"edubank_backend/internal/model"
	"edubank_backend/internal/repository"
	"edubank_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newModerationFixture(t *testing.T) (*ModerationService, *gorm.DB, *LocalStore) {
	t.Helper()
	db := newTestDB(t)
	local := newTestLocalStore(t, newTestConfig(t))
	svc := NewModerationService(
		repository.NewResourceRepository(db),
		repository.NewResourceTagRepository(db),
		local,
	)
	return svc, db, local
}

func TestApprove_PendingBecomesPublic(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	owner := uint(1)
	r := seedResource(t, db, 1, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPendingReview
	})

	approved, err := svc.Approve(r.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPublic, approved.Visibility)
	assert.True(t, approved.ModerationApproved)

	var stored model.Resource
	require.NoError(t, db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, model.VisibilityPublic, stored.Visibility)
	assert.True(t, stored.ModerationApproved)
}

func TestApprove_AlreadyApprovedRefused(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	r := seedResource(t, db, 2, func(r *model.Resource) {
		r.Visibility = model.VisibilityPublic
		r.ModerationApproved = true
	})

	_, err := svc.Approve(r.ID, 99)
	var te *util.TransitionError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, util.ErrAlreadyApproved)
	assert.Equal(t, "approve", te.Op)
}

func TestApprove_NotFound(t *testing.T) {
	svc, _, _ := newModerationFixture(t)
	_, err := svc.Approve("no-such-id", 99)
	assert.ErrorIs(t, err, util.ErrResourceNotFound)
}

func TestReject_DeletesFileTagsAndRow(t *testing.T) {
	svc, db, local := newModerationFixture(t)
	owner := uint(2)
	r := seedResource(t, db, 3, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPendingReview
		r.LocalPath = "uploads/owner_2/reject-me.pdf"
	})
	_, err := local.Save(newPDFReader(), r.LocalPath)
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.ResourceTag{
		TopicID: 5, ResourceID: r.ID, Relevance: 0.8, Source: model.TagByAdmin,
	}).Error)

	require.NoError(t, svc.Reject(r.ID, 99))

	_, err = os.Stat(local.FullPath(r.LocalPath))
	assert.True(t, os.IsNotExist(err), "本地副本应随拒绝一起删除")

	var rows int64
	db.Model(&model.Resource{}).Where("id = ?", r.ID).Count(&rows)
	assert.Zero(t, rows)
	db.Model(&model.ResourceTag{}).Where("resource_id = ?", r.ID).Count(&rows)
	assert.Zero(t, rows)
}

func TestReject_ApprovedRefused(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	r := seedResource(t, db, 4, func(r *model.Resource) {
		r.Visibility = model.VisibilityPublic
		r.ModerationApproved = true
	})

	err := svc.Reject(r.ID, 99)
	assert.ErrorIs(t, err, util.ErrRejectApproved)

	var rows int64
	db.Model(&model.Resource{}).Where("id = ?", r.ID).Count(&rows)
	assert.EqualValues(t, 1, rows)
}

func TestMakePublic_OwnerOnly(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	owner := uint(3)
	r := seedResource(t, db, 5, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPrivate
		r.ModerationApproved = true
	})

	_, err := svc.MakePublic(r.ID, 999)
	assert.ErrorIs(t, err, util.ErrNotOwner)

	updated, err := svc.MakePublic(r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPublic, updated.Visibility)
}

func TestMakePublic_AlreadyPublicRefused(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	owner := uint(6)
	r := seedResource(t, db, 10, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPublic
		r.ModerationApproved = true
	})

	_, err := svc.MakePublic(r.ID, owner)
	assert.ErrorIs(t, err, util.ErrNotPrivate)

	var te *util.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(model.VisibilityPublic), te.From)
}

func TestMakePublic_RequiresApproval(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	owner := uint(4)
	r := seedResource(t, db, 6, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPendingReview
	})

	_, err := svc.MakePublic(r.ID, owner)
	assert.ErrorIs(t, err, util.ErrNotApproved)
}

func TestEditMetadata_BeforeApproval(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	owner := uint(5)
	r := seedResource(t, db, 7, func(r *model.Resource) {
		r.OwnerID = &owner
		r.Visibility = model.VisibilityPendingReview
	})

	title := "2023 年六月真题"
	start, end := 3, 12
	updated, err := svc.EditMetadata(r.ID, &MetadataEdit{
		Title:     &title,
		PageStart: &start,
		PageEnd:   &end,
		Tags:      []string{"mechanics", "paper-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.EqualValues(t, 3, updated.Attributes["page_start"])
	assert.EqualValues(t, 12, updated.Attributes["page_end"])
}

func TestEditMetadata_InvalidPageRange(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	r := seedResource(t, db, 8, func(r *model.Resource) {
		r.Visibility = model.VisibilityPendingReview
	})

	start, end := 10, 3
	_, err := svc.EditMetadata(r.ID, &MetadataEdit{PageStart: &start, PageEnd: &end})
	assert.ErrorIs(t, err, util.ErrInvalidPageRange)

	// 只给一端同样非法
	_, err = svc.EditMetadata(r.ID, &MetadataEdit{PageStart: &start})
	assert.ErrorIs(t, err, util.ErrInvalidPageRange)
}

func TestEditMetadata_AfterApprovalRefused(t *testing.T) {
	svc, db, _ := newModerationFixture(t)
	r := seedResource(t, db, 9, func(r *model.Resource) {
		r.Visibility = model.VisibilityPublic
		r.ModerationApproved = true
	})

	title := "改不了"
	_, err := svc.EditMetadata(r.ID, &MetadataEdit{Title: &title})
	assert.ErrorIs(t, err, util.ErrEditAfterApproval)
}
