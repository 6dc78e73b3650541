package domain

import "time"

// Entry represents one item of a feed, deduplicated by (FeedID, GUID).
// ReadAt and StarredAt are user state and survive re-fetches of the same guid.
type Entry struct {
	ID        int64
	FeedID    int64
	GUID      string
	Title     string
	Link      string
	Published time.Time
	Author    string
	Summary   string
	Content   string
	ReadAt    *time.Time
	StarredAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Icon is a feed's representative image with its own cache validators
type Icon struct {
	FeedID       int64
	Data         []byte
	ContentType  string
	ETag         string
	LastModified string
	FetchedAt    time.Time
}
