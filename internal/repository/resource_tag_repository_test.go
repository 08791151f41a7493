package repository

import (
	"testing"

	"edubank_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagUpsert_Idempotent(t *testing.T) {
	db := newTestDB(t)
	tags := NewResourceTagRepository(db)
	resources := NewResourceRepository(db)

	r := makeResource(sig(50), nil)
	require.NoError(t, resources.CreateWithinQuota(r, 1))

	link := &model.ResourceTag{TopicID: 12, ResourceID: r.ID, Relevance: 0.4, Source: model.TagBySystem}
	require.NoError(t, tags.Upsert(link))

	// 重复写入同一关联只更新相关度
	link2 := &model.ResourceTag{TopicID: 12, ResourceID: r.ID, Relevance: 0.9, Source: model.TagByAdmin}
	require.NoError(t, tags.Upsert(link2))

	var got []model.ResourceTag
	require.NoError(t, db.Where("topic_id = ?", 12).Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Relevance)
	assert.Equal(t, model.TagByAdmin, got[0].Source)
}

func TestTopResources_PublicOnlyOrdered(t *testing.T) {
	db := newTestDB(t)
	tags := NewResourceTagRepository(db)
	resources := NewResourceRepository(db)

	pub1 := makeResource(sig(51), nil)
	pub1.Visibility = model.VisibilityPublic
	pub2 := makeResource(sig(52), nil)
	pub2.Visibility = model.VisibilityPublic
	hidden := makeResource(sig(53), nil)
	hidden.Visibility = model.VisibilityPendingReview
	for _, r := range []*model.Resource{pub1, pub2, hidden} {
		require.NoError(t, resources.CreateWithinQuota(r, 1))
	}

	require.NoError(t, tags.Upsert(&model.ResourceTag{TopicID: 3, ResourceID: pub1.ID, Relevance: 0.5, Source: model.TagBySystem}))
	require.NoError(t, tags.Upsert(&model.ResourceTag{TopicID: 3, ResourceID: pub2.ID, Relevance: 0.8, Source: model.TagBySystem}))
	require.NoError(t, tags.Upsert(&model.ResourceTag{TopicID: 3, ResourceID: hidden.ID, Relevance: 0.99, Source: model.TagBySystem}))

	top, err := tags.TopResources(3, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, pub2.ID, top[0].ID)
	assert.Equal(t, pub1.ID, top[1].ID)
}

func TestDeleteByResource(t *testing.T) {
	db := newTestDB(t)
	tags := NewResourceTagRepository(db)
	resources := NewResourceRepository(db)

	r := makeResource(sig(54), nil)
	require.NoError(t, resources.CreateWithinQuota(r, 1))
	require.NoError(t, tags.Upsert(&model.ResourceTag{TopicID: 1, ResourceID: r.ID, Relevance: 1, Source: model.TagBySystem}))
	require.NoError(t, tags.Upsert(&model.ResourceTag{TopicID: 2, ResourceID: r.ID, Relevance: 1, Source: model.TagBySystem}))

	require.NoError(t, tags.DeleteByResource(r.ID))

	var remaining int64
	require.NoError(t, db.Model(&model.ResourceTag{}).Where("resource_id = ?", r.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
