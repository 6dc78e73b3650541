package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

func TestEntryRepository_UpsertEntries_Idempotent(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repos, "alice")
	category := createTestCategory(t, repos, user.ID, "News")
	feed := createTestFeed(t, repos, user.ID, category.ID, "https://example.com/feed.xml")

	published := testTime(t, "2025-06-01T10:00:00Z")
	first := []domain.Entry{
		{GUID: "guid-1", Title: "First", Link: "https://example.com/1", Published: published, Summary: "old summary"},
		{GUID: "guid-2", Title: "Second", Link: "https://example.com/2", Published: published.Add(time.Hour)},
	}
	err := repos.Entry.UpsertEntries(ctx, user.ID, feed.ID, first)
	require.NoError(t, err)

	entries, err := repos.Entry.GetEntries(ctx, user.ID, feed.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// mark the first entry read and starred, then re-deliver it with new content
	var target *domain.Entry
	for _, e := range entries {
		if e.GUID == "guid-1" {
			target = e
		}
	}
	require.NotNil(t, target)
	require.NoError(t, repos.Entry.MarkRead(ctx, user.ID, target.ID, true))
	require.NoError(t, repos.Entry.MarkStarred(ctx, user.ID, target.ID, true))

	second := []domain.Entry{
		{GUID: "guid-1", Title: "First Updated", Link: "https://example.com/1", Published: published, Summary: "new summary"},
	}
	err = repos.Entry.UpsertEntries(ctx, user.ID, feed.ID, second)
	require.NoError(t, err)

	got, err := repos.Entry.GetEntry(ctx, user.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "First Updated", got.Title)
	assert.Equal(t, "new summary", got.Summary)
	assert.NotNil(t, got.ReadAt, "re-delivery must not clear read state")
	assert.NotNil(t, got.StarredAt, "re-delivery must not clear starred state")

	// no duplicate rows created
	entries, err = repos.Entry.GetEntries(ctx, user.ID, feed.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEntryRepository_UpsertEntries_SetsFetchedAt(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repos, "alice")
	category := createTestCategory(t, repos, user.ID, "News")
	feed := createTestFeed(t, repos, user.ID, category.ID, "https://example.com/feed.xml")

	require.Nil(t, feed.FetchedAt)

	err := repos.Entry.UpsertEntries(ctx, user.ID, feed.ID, []domain.Entry{
		{GUID: "g", Title: "T", Published: testTime(t, "2025-06-01T10:00:00Z")},
	})
	require.NoError(t, err)

	got, err := repos.Feed.GetFeed(ctx, user.ID, feed.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.FetchedAt)
}

func TestEntryRepository_UpsertEntries_Chunked(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repos, "alice")
	category := createTestCategory(t, repos, user.ID, "News")
	feed := createTestFeed(t, repos, user.ID, category.ID, "https://example.com/feed.xml")

	// more entries than one chunk holds
	published := testTime(t, "2025-06-01T10:00:00Z")
	entries := make([]domain.Entry, 0, upsertChunkSize*2+7)
	for i := 0; i < cap(entries); i++ {
		entries = append(entries, domain.Entry{
			GUID:      fmt.Sprintf("guid-%03d", i),
			Title:     fmt.Sprintf("Entry %d", i),
			Published: published.Add(time.Duration(i) * time.Minute),
		})
	}

	err := repos.Entry.UpsertEntries(ctx, user.ID, feed.ID, entries)
	require.NoError(t, err)

	got, err := repos.Entry.GetEntries(ctx, user.ID, feed.ID, 1000, 0)
	require.NoError(t, err)
	assert.Len(t, got, len(entries))

	// newest first
	assert.Equal(t, fmt.Sprintf("guid-%03d", len(entries)-1), got[0].GUID)
}

func TestEntryRepository_UpsertEntries_TenantIsolation(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	alice := createTestUser(t, repos, "alice")
	bob := createTestUser(t, repos, "bob")
	category := createTestCategory(t, repos, alice.ID, "News")
	feed := createTestFeed(t, repos, alice.ID, category.ID, "https://example.com/feed.xml")

	err := repos.Entry.UpsertEntries(ctx, bob.ID, feed.ID, []domain.Entry{
		{GUID: "g", Title: "T", Published: testTime(t, "2025-06-01T10:00:00Z")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// nothing written
	entries, err := repos.Entry.GetEntries(ctx, alice.ID, feed.ID, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryRepository_MarkReadAndStarred(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	alice := createTestUser(t, repos, "alice")
	bob := createTestUser(t, repos, "bob")
	category := createTestCategory(t, repos, alice.ID, "News")
	feed := createTestFeed(t, repos, alice.ID, category.ID, "https://example.com/feed.xml")

	err := repos.Entry.UpsertEntries(ctx, alice.ID, feed.ID, []domain.Entry{
		{GUID: "g", Title: "T", Published: testTime(t, "2025-06-01T10:00:00Z")},
	})
	require.NoError(t, err)

	entries, err := repos.Entry.GetEntries(ctx, alice.ID, feed.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entryID := entries[0].ID

	t.Run("set and clear read", func(t *testing.T) {
		require.NoError(t, repos.Entry.MarkRead(ctx, alice.ID, entryID, true))
		got, err := repos.Entry.GetEntry(ctx, alice.ID, entryID)
		require.NoError(t, err)
		assert.NotNil(t, got.ReadAt)

		require.NoError(t, repos.Entry.MarkRead(ctx, alice.ID, entryID, false))
		got, err = repos.Entry.GetEntry(ctx, alice.ID, entryID)
		require.NoError(t, err)
		assert.Nil(t, got.ReadAt)
	})

	t.Run("set and clear starred", func(t *testing.T) {
		require.NoError(t, repos.Entry.MarkStarred(ctx, alice.ID, entryID, true))
		got, err := repos.Entry.GetEntry(ctx, alice.ID, entryID)
		require.NoError(t, err)
		assert.NotNil(t, got.StarredAt)

		require.NoError(t, repos.Entry.MarkStarred(ctx, alice.ID, entryID, false))
		got, err = repos.Entry.GetEntry(ctx, alice.ID, entryID)
		require.NoError(t, err)
		assert.Nil(t, got.StarredAt)
	})

	t.Run("other user can't mutate", func(t *testing.T) {
		err := repos.Entry.MarkRead(ctx, bob.ID, entryID, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = repos.Entry.MarkStarred(ctx, bob.ID, entryID, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown entry reports not found", func(t *testing.T) {
		err := repos.Entry.MarkRead(ctx, alice.ID, 99999, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEntryRepository_GetEntries_Pagination(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repos, "alice")
	category := createTestCategory(t, repos, user.ID, "News")
	feed := createTestFeed(t, repos, user.ID, category.ID, "https://example.com/feed.xml")

	published := testTime(t, "2025-06-01T10:00:00Z")
	entries := make([]domain.Entry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, domain.Entry{
			GUID:      fmt.Sprintf("g%d", i),
			Title:     fmt.Sprintf("E%d", i),
			Published: published.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, repos.Entry.UpsertEntries(ctx, user.ID, feed.ID, entries))

	page, err := repos.Entry.GetEntries(ctx, user.ID, feed.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "g4", page[0].GUID)
	assert.Equal(t, "g3", page[1].GUID)

	page, err = repos.Entry.GetEntries(ctx, user.ID, feed.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "g0", page[0].GUID)
}
