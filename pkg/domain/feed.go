package domain

import "time"

// Feed represents a subscribed source inside a user's category.
// ETag and LastModified are the conditional-cache validators captured from the
// last successful fetch; ErrorCount/LastError accumulate consecutive failures.
type Feed struct {
	ID           int64
	CategoryID   int64
	Title        string
	FeedURL      string
	SiteURL      string
	FetchedAt    *time.Time
	ETag         string
	LastModified string
	ErrorCount   int
	LastError    string
	DisableHTTP2 bool   // some servers choke on multiplexed transport
	UserAgent    string // per-feed override, empty means process default
	CreatedAt    time.Time
}

// FeedMetaUpdate carries the post-fetch bookkeeping for a feed. Either the
// cache validators (success) or Error (failure) are set, never both.
type FeedMetaUpdate struct {
	ETag         string
	LastModified string
	Error        string
}

// Category groups feeds and ties them to the owning user
type Category struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
}
