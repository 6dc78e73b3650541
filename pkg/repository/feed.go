package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// FeedRepository handles feed-related database operations
type FeedRepository struct {
	db *sqlx.DB
}

// feedSQL represents a feed for SQL operations
type feedSQL struct {
	ID           int64      `db:"id"`
	CategoryID   int64      `db:"category_id"`
	Title        string     `db:"title"`
	FeedURL      string     `db:"feed_url"`
	SiteURL      string     `db:"site_url"`
	FetchedAt    *time.Time `db:"fetched_at"`
	ETag         string     `db:"etag"`
	LastModified string     `db:"last_modified"`
	ErrorCount   int        `db:"error_count"`
	LastError    string     `db:"last_error"`
	DisableHTTP2 bool       `db:"disable_http2"`
	UserAgent    string     `db:"user_agent"`
	CreatedAt    time.Time  `db:"created_at"`
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(database *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: database}
}

// CreateFeed inserts a new feed into one of the user's categories. Fails with
// domain.ErrNotFound when the category isn't owned by the user and rejects a
// duplicate feed URL within the user's subscriptions.
func (r *FeedRepository) CreateFeed(ctx context.Context, userID int64, feed *domain.Feed) error {
	var owned bool
	err := r.db.GetContext(ctx, &owned,
		"SELECT EXISTS(SELECT 1 FROM categories WHERE id = ? AND user_id = ?)",
		feed.CategoryID, userID)
	if err != nil {
		return fmt.Errorf("check category owner: %w", err)
	}
	if !owned {
		return fmt.Errorf("category %d for user %d: %w", feed.CategoryID, userID, domain.ErrNotFound)
	}

	var exists bool
	err = r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM feeds f
			JOIN categories c ON f.category_id = c.id
			WHERE c.user_id = ? AND f.feed_url = ?
		)`, userID, feed.FeedURL)
	if err != nil {
		return fmt.Errorf("check feed url unique: %w", err)
	}
	if exists {
		return fmt.Errorf("feed url %q already subscribed for user %d", feed.FeedURL, userID)
	}

	sqlFeed := &feedSQL{
		CategoryID:   feed.CategoryID,
		Title:        feed.Title,
		FeedURL:      feed.FeedURL,
		SiteURL:      feed.SiteURL,
		DisableHTTP2: feed.DisableHTTP2,
		UserAgent:    feed.UserAgent,
	}

	query := `
		INSERT INTO feeds (category_id, title, feed_url, site_url, disable_http2, user_agent)
		VALUES (:category_id, :title, :feed_url, :site_url, :disable_http2, :user_agent)
	`
	result, err := r.db.NamedExecContext(ctx, query, sqlFeed)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}

	feed.ID = id
	return nil
}

// GetFeed retrieves a feed by ID, scoped to the owning user
func (r *FeedRepository) GetFeed(ctx context.Context, userID, feedID int64) (*domain.Feed, error) {
	var sqlFeed feedSQL
	err := r.db.GetContext(ctx, &sqlFeed, `
		SELECT f.* FROM feeds f
		JOIN categories c ON f.category_id = c.id
		WHERE f.id = ? AND c.user_id = ?`, feedID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d for user %d: %w", feedID, userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return r.toDomainFeed(&sqlFeed), nil
}

// GetFeeds retrieves all feeds of the user ordered by title
func (r *FeedRepository) GetFeeds(ctx context.Context, userID int64) ([]*domain.Feed, error) {
	var sqlFeeds []feedSQL
	err := r.db.SelectContext(ctx, &sqlFeeds, `
		SELECT f.* FROM feeds f
		JOIN categories c ON f.category_id = c.id
		WHERE c.user_id = ?
		ORDER BY f.title`, userID)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}

	feeds := make([]*domain.Feed, len(sqlFeeds))
	for i, f := range sqlFeeds {
		feeds[i] = r.toDomainFeed(&f)
	}
	return feeds, nil
}

// GetFeedsBelowErrorThreshold retrieves the user's feeds eligible for the
// scheduled sweep: those whose consecutive error count is below the threshold
func (r *FeedRepository) GetFeedsBelowErrorThreshold(ctx context.Context, userID int64, threshold int) ([]*domain.Feed, error) {
	var sqlFeeds []feedSQL
	err := r.db.SelectContext(ctx, &sqlFeeds, `
		SELECT f.* FROM feeds f
		JOIN categories c ON f.category_id = c.id
		WHERE c.user_id = ? AND f.error_count < ?
		ORDER BY f.id`, userID, threshold)
	if err != nil {
		return nil, fmt.Errorf("get feeds below threshold: %w", err)
	}

	feeds := make([]*domain.Feed, len(sqlFeeds))
	for i, f := range sqlFeeds {
		feeds[i] = r.toDomainFeed(&f)
	}
	return feeds, nil
}

// UpdateFeedMetadata records the outcome of a fetch attempt. On success the
// cache validators are stored when present, the error count is reset and the
// last error cleared; on failure the count is incremented and the message
// stored, leaving validators untouched. Returns the number of updated rows,
// zero when the feed isn't owned by the user.
func (r *FeedRepository) UpdateFeedMetadata(ctx context.Context, userID, feedID int64, meta domain.FeedMetaUpdate) (int64, error) {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	var updated int64
	err := retrier.Do(ctx, func() error {
		var query string
		var args []interface{}

		if meta.Error != "" {
			query = `
				UPDATE feeds
				SET error_count = error_count + 1,
				    last_error = ?
				WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE user_id = ?)
			`
			args = []interface{}{meta.Error, feedID, userID}
		} else {
			query = `
				UPDATE feeds
				SET etag = COALESCE(NULLIF(?, ''), etag),
				    last_modified = COALESCE(NULLIF(?, ''), last_modified),
				    error_count = 0,
				    last_error = ''
				WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE user_id = ?)
			`
			args = []interface{}{meta.ETag, meta.LastModified, feedID, userID}
		}

		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("update feed metadata: %w", err)}
		}

		updated, err = result.RowsAffected()
		if err != nil {
			return &criticalError{err: fmt.Errorf("rows affected: %w", err)}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// UpdateFeedInfo stores the title and site URL reported by the feed document
func (r *FeedRepository) UpdateFeedInfo(ctx context.Context, userID, feedID int64, title, siteURL string) error {
	query := `
		UPDATE feeds
		SET title = COALESCE(NULLIF(?, ''), title),
		    site_url = COALESCE(NULLIF(?, ''), site_url)
		WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE user_id = ?)
	`
	if _, err := r.db.ExecContext(ctx, query, title, siteURL, feedID, userID); err != nil {
		return fmt.Errorf("update feed info: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed and, via cascade, its entries and icon
func (r *FeedRepository) DeleteFeed(ctx context.Context, userID, feedID int64) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM feeds WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE user_id = ?)",
		feedID, userID)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feed %d for user %d: %w", feedID, userID, domain.ErrNotFound)
	}
	return nil
}

// toDomainFeed converts feedSQL to domain.Feed
func (r *FeedRepository) toDomainFeed(sqlFeed *feedSQL) *domain.Feed {
	return &domain.Feed{
		ID:           sqlFeed.ID,
		CategoryID:   sqlFeed.CategoryID,
		Title:        sqlFeed.Title,
		FeedURL:      sqlFeed.FeedURL,
		SiteURL:      sqlFeed.SiteURL,
		FetchedAt:    sqlFeed.FetchedAt,
		ETag:         sqlFeed.ETag,
		LastModified: sqlFeed.LastModified,
		ErrorCount:   sqlFeed.ErrorCount,
		LastError:    sqlFeed.LastError,
		DisableHTTP2: sqlFeed.DisableHTTP2,
		UserAgent:    sqlFeed.UserAgent,
		CreatedAt:    sqlFeed.CreatedAt,
	}
}
