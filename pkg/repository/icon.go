package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// IconRepository handles feed icon storage
type IconRepository struct {
	db *sqlx.DB
}

// iconSQL represents an icon for SQL operations
type iconSQL struct {
	FeedID       int64     `db:"feed_id"`
	Data         []byte    `db:"data"`
	ContentType  string    `db:"content_type"`
	ETag         string    `db:"etag"`
	LastModified string    `db:"last_modified"`
	FetchedAt    time.Time `db:"fetched_at"`
}

// NewIconRepository creates a new icon repository
func NewIconRepository(database *sqlx.DB) *IconRepository {
	return &IconRepository{db: database}
}

// GetIcon retrieves the stored icon for a feed, scoped to the owning user
func (r *IconRepository) GetIcon(ctx context.Context, userID, feedID int64) (*domain.Icon, error) {
	var sqlIcon iconSQL
	err := r.db.GetContext(ctx, &sqlIcon, `
		SELECT i.* FROM icons i
		JOIN feeds f ON i.feed_id = f.id
		JOIN categories c ON f.category_id = c.id
		WHERE i.feed_id = ? AND c.user_id = ?`, feedID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("icon for feed %d user %d: %w", feedID, userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get icon: %w", err)
	}
	return r.toDomainIcon(&sqlIcon), nil
}

// UpsertIcon stores or replaces the feed's icon. Fails with domain.ErrNotFound
// when the feed isn't owned by the user.
func (r *IconRepository) UpsertIcon(ctx context.Context, userID int64, icon *domain.Icon) error {
	var owned bool
	err := r.db.GetContext(ctx, &owned, `
		SELECT EXISTS(
			SELECT 1 FROM feeds f
			JOIN categories c ON f.category_id = c.id
			WHERE f.id = ? AND c.user_id = ?
		)`, icon.FeedID, userID)
	if err != nil {
		return fmt.Errorf("check feed owner: %w", err)
	}
	if !owned {
		return fmt.Errorf("feed %d for user %d: %w", icon.FeedID, userID, domain.ErrNotFound)
	}

	query := `
		INSERT INTO icons (feed_id, data, content_type, etag, last_modified, fetched_at)
		VALUES (:feed_id, :data, :content_type, :etag, :last_modified, datetime('now'))
		ON CONFLICT (feed_id) DO UPDATE SET
			data = excluded.data,
			content_type = excluded.content_type,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			fetched_at = excluded.fetched_at
	`
	sqlIcon := &iconSQL{
		FeedID:       icon.FeedID,
		Data:         icon.Data,
		ContentType:  icon.ContentType,
		ETag:         icon.ETag,
		LastModified: icon.LastModified,
	}
	if _, err := r.db.NamedExecContext(ctx, query, sqlIcon); err != nil {
		return fmt.Errorf("upsert icon: %w", err)
	}
	return nil
}

// TouchIcon refreshes the icon's fetch time without changing its data, used
// when a conditional refresh comes back not modified
func (r *IconRepository) TouchIcon(ctx context.Context, userID, feedID int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE icons SET fetched_at = datetime('now')
		WHERE feed_id = ? AND feed_id IN (
			SELECT f.id FROM feeds f
			JOIN categories c ON f.category_id = c.id
			WHERE c.user_id = ?
		)`, feedID, userID)
	if err != nil {
		return fmt.Errorf("touch icon: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("icon for feed %d user %d: %w", feedID, userID, domain.ErrNotFound)
	}
	return nil
}

// toDomainIcon converts iconSQL to domain.Icon
func (r *IconRepository) toDomainIcon(sqlIcon *iconSQL) *domain.Icon {
	return &domain.Icon{
		FeedID:       sqlIcon.FeedID,
		Data:         sqlIcon.Data,
		ContentType:  sqlIcon.ContentType,
		ETag:         sqlIcon.ETag,
		LastModified: sqlIcon.LastModified,
		FetchedAt:    sqlIcon.FetchedAt,
	}
}
