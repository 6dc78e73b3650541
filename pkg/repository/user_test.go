package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

func TestUserRepository_CreateUser_FirstIsAdmin(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	first := &domain.User{Username: "alice"}
	require.NoError(t, repos.User.CreateUser(ctx, first))
	assert.True(t, first.IsAdmin)

	second := &domain.User{Username: "bob"}
	require.NoError(t, repos.User.CreateUser(ctx, second))
	assert.False(t, second.IsAdmin)

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup := &domain.User{Username: "alice"}
		err := repos.User.CreateUser(ctx, dup)
		require.Error(t, err)
	})

	t.Run("get user", func(t *testing.T) {
		got, err := repos.User.GetUser(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.True(t, got.IsAdmin)

		_, err = repos.User.GetUser(ctx, 99999)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list users", func(t *testing.T) {
		users, err := repos.User.GetUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
	})
}

func TestUserRepository_Categories(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	alice := createTestUser(t, repos, "alice")
	bob := createTestUser(t, repos, "bob")

	catNews := &domain.Category{UserID: alice.ID, Title: "News"}
	require.NoError(t, repos.User.CreateCategory(ctx, catNews))
	assert.Greater(t, catNews.ID, int64(0))

	catDev := &domain.Category{UserID: alice.ID, Title: "Dev"}
	require.NoError(t, repos.User.CreateCategory(ctx, catDev))

	t.Run("duplicate title per user rejected", func(t *testing.T) {
		dup := &domain.Category{UserID: alice.ID, Title: "News"}
		err := repos.User.CreateCategory(ctx, dup)
		require.Error(t, err)
	})

	t.Run("same title for another user is fine", func(t *testing.T) {
		other := &domain.Category{UserID: bob.ID, Title: "News"}
		require.NoError(t, repos.User.CreateCategory(ctx, other))
	})

	t.Run("list is scoped and ordered", func(t *testing.T) {
		categories, err := repos.User.GetCategories(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, categories, 2)
		assert.Equal(t, "Dev", categories[0].Title)
		assert.Equal(t, "News", categories[1].Title)
	})
}

func TestUserRepository_Settings(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repos, "alice")

	err := repos.User.SetSettings(ctx, user.ID, []domain.Setting{
		{Key: "theme", Value: "dark"},
		{Key: "page_size", Value: "50"},
	})
	require.NoError(t, err)

	t.Run("upsert replaces value", func(t *testing.T) {
		err := repos.User.SetSettings(ctx, user.ID, []domain.Setting{
			{Key: "theme", Value: "light"},
		})
		require.NoError(t, err)

		settings, err := repos.User.GetSettings(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, settings, 2)
		assert.Equal(t, "page_size", settings[0].Key)
		assert.Equal(t, "theme", settings[1].Key)
		assert.Equal(t, "light", settings[1].Value)
	})

	t.Run("settings are per user", func(t *testing.T) {
		bob := createTestUser(t, repos, "bob")
		settings, err := repos.User.GetSettings(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, settings)
	})
}
