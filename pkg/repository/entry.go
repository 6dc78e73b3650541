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

// upsertChunkSize bounds the number of rows per INSERT statement
const upsertChunkSize = 50

// EntryRepository handles entry-related database operations
type EntryRepository struct {
	db *sqlx.DB
}

// entrySQL represents an entry for SQL operations
type entrySQL struct {
	ID        int64      `db:"id"`
	FeedID    int64      `db:"feed_id"`
	GUID      string     `db:"guid"`
	Title     string     `db:"title"`
	Link      string     `db:"link"`
	Published time.Time  `db:"published"`
	Author    string     `db:"author"`
	Summary   string     `db:"summary"`
	Content   string     `db:"content"`
	ReadAt    *time.Time `db:"read_at"`
	StarredAt *time.Time `db:"starred_at"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(database *sqlx.DB) *EntryRepository {
	return &EntryRepository{db: database}
}

// UpsertEntries stores the entries of one fetch cycle idempotently, keyed by
// (feed id, guid): an already-seen guid updates the content fields but never
// touches read_at/starred_at. All chunks plus the feed's fetched_at update
// run in a single transaction, so a mid-cycle failure leaves no partial data.
// Fails with domain.ErrNotFound when the feed isn't owned by the user.
func (r *EntryRepository) UpsertEntries(ctx context.Context, userID, feedID int64, entries []domain.Entry) error {
	owned, err := r.feedOwned(ctx, userID, feedID)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("feed %d for user %d: %w", feedID, userID, domain.ErrNotFound)
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		err := r.upsertTx(ctx, feedID, entries)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: err}
		}
		return nil
	})
}

func (r *EntryRepository) upsertTx(ctx context.Context, feedID int64, entries []domain.Entry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO entries (feed_id, guid, title, link, published, author, summary, content)
		VALUES (:feed_id, :guid, :title, :link, :published, :author, :summary, :content)
		ON CONFLICT (feed_id, guid) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			published = excluded.published,
			author = excluded.author,
			summary = excluded.summary,
			content = excluded.content,
			updated_at = CURRENT_TIMESTAMP
	`

	for start := 0; start < len(entries); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(entries) {
			end = len(entries)
		}

		chunk := make([]entrySQL, 0, end-start)
		for _, e := range entries[start:end] {
			chunk = append(chunk, entrySQL{
				FeedID:    feedID,
				GUID:      e.GUID,
				Title:     e.Title,
				Link:      e.Link,
				Published: e.Published.UTC(),
				Author:    e.Author,
				Summary:   e.Summary,
				Content:   e.Content,
			})
		}

		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return fmt.Errorf("upsert entries chunk: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE feeds SET fetched_at = datetime('now') WHERE id = ?", feedID); err != nil {
		return fmt.Errorf("update fetched_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// GetEntries retrieves a feed's entries for the user, newest first
func (r *EntryRepository) GetEntries(ctx context.Context, userID, feedID int64, limit, offset int) ([]*domain.Entry, error) {
	var sqlEntries []entrySQL
	err := r.db.SelectContext(ctx, &sqlEntries, `
		SELECT e.* FROM entries e
		JOIN feeds f ON e.feed_id = f.id
		JOIN categories c ON f.category_id = c.id
		WHERE e.feed_id = ? AND c.user_id = ?
		ORDER BY e.published DESC
		LIMIT ? OFFSET ?`, feedID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}

	entries := make([]*domain.Entry, len(sqlEntries))
	for i, e := range sqlEntries {
		entries[i] = r.toDomainEntry(&e)
	}
	return entries, nil
}

// GetEntry retrieves a single entry scoped to the owning user
func (r *EntryRepository) GetEntry(ctx context.Context, userID, entryID int64) (*domain.Entry, error) {
	var sqlEntry entrySQL
	err := r.db.GetContext(ctx, &sqlEntry, `
		SELECT e.* FROM entries e
		JOIN feeds f ON e.feed_id = f.id
		JOIN categories c ON f.category_id = c.id
		WHERE e.id = ? AND c.user_id = ?`, entryID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %d for user %d: %w", entryID, userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return r.toDomainEntry(&sqlEntry), nil
}

// MarkRead sets or clears the entry's read timestamp
func (r *EntryRepository) MarkRead(ctx context.Context, userID, entryID int64, read bool) error {
	return r.markUserState(ctx, userID, entryID, "read_at", read)
}

// MarkStarred sets or clears the entry's starred timestamp
func (r *EntryRepository) MarkStarred(ctx context.Context, userID, entryID int64, starred bool) error {
	return r.markUserState(ctx, userID, entryID, "starred_at", starred)
}

func (r *EntryRepository) markUserState(ctx context.Context, userID, entryID int64, column string, set bool) error {
	value := "datetime('now')"
	if !set {
		value = "NULL"
	}

	// column comes from the two callers above, never from input
	query := fmt.Sprintf(`
		UPDATE entries SET %s = %s
		WHERE id = ? AND feed_id IN (
			SELECT f.id FROM feeds f
			JOIN categories c ON f.category_id = c.id
			WHERE c.user_id = ?
		)`, column, value)

	result, err := r.db.ExecContext(ctx, query, entryID, userID)
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %d for user %d: %w", entryID, userID, domain.ErrNotFound)
	}
	return nil
}

func (r *EntryRepository) feedOwned(ctx context.Context, userID, feedID int64) (bool, error) {
	var owned bool
	err := r.db.GetContext(ctx, &owned, `
		SELECT EXISTS(
			SELECT 1 FROM feeds f
			JOIN categories c ON f.category_id = c.id
			WHERE f.id = ? AND c.user_id = ?
		)`, feedID, userID)
	if err != nil {
		return false, fmt.Errorf("check feed owner: %w", err)
	}
	return owned, nil
}

// toDomainEntry converts entrySQL to domain.Entry
func (r *EntryRepository) toDomainEntry(sqlEntry *entrySQL) *domain.Entry {
	return &domain.Entry{
		ID:        sqlEntry.ID,
		FeedID:    sqlEntry.FeedID,
		GUID:      sqlEntry.GUID,
		Title:     sqlEntry.Title,
		Link:      sqlEntry.Link,
		Published: sqlEntry.Published,
		Author:    sqlEntry.Author,
		Summary:   sqlEntry.Summary,
		Content:   sqlEntry.Content,
		ReadAt:    sqlEntry.ReadAt,
		StarredAt: sqlEntry.StarredAt,
		CreatedAt: sqlEntry.CreatedAt,
		UpdatedAt: sqlEntry.UpdatedAt,
	}
}
