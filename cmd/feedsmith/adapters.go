package main

import (
	"context"

	"github.com/feedsmith/feedsmith/pkg/domain"
	"github.com/feedsmith/feedsmith/pkg/repository"
)

// apiStore bundles the per-entity repositories behind the single storage
// interface the API layer consumes
type apiStore struct {
	repos *repository.Repositories
}

func (a *apiStore) GetFeeds(ctx context.Context, userID int64) ([]*domain.Feed, error) {
	return a.repos.Feed.GetFeeds(ctx, userID)
}

func (a *apiStore) GetFeed(ctx context.Context, userID, feedID int64) (*domain.Feed, error) {
	return a.repos.Feed.GetFeed(ctx, userID, feedID)
}

func (a *apiStore) GetEntries(ctx context.Context, userID, feedID int64, limit, offset int) ([]*domain.Entry, error) {
	return a.repos.Entry.GetEntries(ctx, userID, feedID, limit, offset)
}

func (a *apiStore) MarkRead(ctx context.Context, userID, entryID int64, read bool) error {
	return a.repos.Entry.MarkRead(ctx, userID, entryID, read)
}

func (a *apiStore) MarkStarred(ctx context.Context, userID, entryID int64, starred bool) error {
	return a.repos.Entry.MarkStarred(ctx, userID, entryID, starred)
}
