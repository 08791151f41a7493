package repository

import (
	"testing"
	"time"

	"edubank_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreateAndFindByEmail(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	user := &model.User{
		Name:     "张三",
		Email:    "zhangsan@example.com",
		Password: "hashed",
		Role:     model.Student,
	}
	require.NoError(t, repo.Create(user))
	require.NotZero(t, user.ID)

	got, err := repo.FindByEmail("zhangsan@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, model.Student, got.Role)
	assert.False(t, got.Disabled)
}

func TestUserUpdateLastLogin(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	user := &model.User{Name: "李四", Email: "lisi@example.com", Password: "hashed", Role: model.Moderator}
	require.NoError(t, repo.Create(user))

	before := time.Now().Add(-time.Second)
	require.NoError(t, repo.UpdateLastLogin(user.ID))

	got, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.True(t, got.LastLogin.After(before))
	assert.True(t, got.IsModerator())
}
