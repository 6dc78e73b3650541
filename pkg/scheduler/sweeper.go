package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/feedsmith/feedsmith/pkg/domain"
	"github.com/feedsmith/feedsmith/pkg/fetch"
	"github.com/feedsmith/feedsmith/pkg/icon"
)

// UserStore lists the tenants a sweep iterates over
type UserStore interface {
	GetUsers(ctx context.Context) ([]*domain.User, error)
}

// FeedStore provides feed lookup and metadata bookkeeping for the sweep
type FeedStore interface {
	GetFeed(ctx context.Context, userID, feedID int64) (*domain.Feed, error)
	GetFeedsBelowErrorThreshold(ctx context.Context, userID int64, threshold int) ([]*domain.Feed, error)
	UpdateFeedMetadata(ctx context.Context, userID, feedID int64, meta domain.FeedMetaUpdate) (int64, error)
	UpdateFeedInfo(ctx context.Context, userID, feedID int64, title, siteURL string) error
}

// EntryStore persists fetched entries
type EntryStore interface {
	UpsertEntries(ctx context.Context, userID, feedID int64, entries []domain.Entry) error
}

// IconStore persists discovered icons
type IconStore interface {
	GetIcon(ctx context.Context, userID, feedID int64) (*domain.Icon, error)
	UpsertIcon(ctx context.Context, userID int64, icon *domain.Icon) error
	TouchIcon(ctx context.Context, userID, feedID int64) error
}

// FeedFetcher downloads and parses one feed
type FeedFetcher interface {
	Fetch(ctx context.Context, feed *domain.Feed) (*fetch.Result, error)
}

// IconFinder locates and downloads one feed's icon
type IconFinder interface {
	Fetch(ctx context.Context, feed *domain.Feed, existing *domain.Icon) (*icon.Result, error)
}

// Sweeper walks all tenants and synchronizes their feeds. Per-feed failures
// are recorded on the feed and never abort the sweep; the aggregate failure
// count surfaces as the job's run error.
type Sweeper struct {
	users          UserStore
	feeds          FeedStore
	entries        EntryStore
	icons          IconStore
	fetcher        FeedFetcher
	finder         IconFinder
	errorThreshold int
	maxConcurrent  int
}

// SweeperConfig holds sweeper configuration
type SweeperConfig struct {
	Users          UserStore
	Feeds          FeedStore
	Entries        EntryStore
	Icons          IconStore
	Fetcher        FeedFetcher
	Finder         IconFinder
	ErrorThreshold int
	MaxConcurrent  int
}

// NewSweeper creates a sweeper from the config
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Sweeper{
		users:          cfg.Users,
		feeds:          cfg.Feeds,
		entries:        cfg.Entries,
		icons:          cfg.Icons,
		fetcher:        cfg.Fetcher,
		finder:         cfg.Finder,
		errorThreshold: cfg.ErrorThreshold,
		maxConcurrent:  cfg.MaxConcurrent,
	}
}

// SweepEntries synchronizes the entries of every eligible feed of every user.
// Feeds at or above the error threshold sit the round out until a manual
// refresh succeeds and resets their count.
func (s *Sweeper) SweepEntries(ctx context.Context) error {
	users, err := s.users.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var total, failed int64
	for _, user := range users {
		feeds, err := s.feeds.GetFeedsBelowErrorThreshold(ctx, user.ID, s.errorThreshold)
		if err != nil {
			lgr.Printf("[ERROR] failed to list feeds for user %d: %v", user.ID, err)
			failed++
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)

		for _, f := range feeds {
			g.Go(func() error {
				atomic.AddInt64(&total, 1)
				if err := s.syncFeed(gctx, user.ID, f); err != nil {
					atomic.AddInt64(&failed, 1)
					lgr.Printf("[WARN] failed to sync feed %s: %v", f.FeedURL, err)
				}
				return nil
			})
		}

		// goroutines never return errors, Wait only propagates ctx cancellation
		if err := g.Wait(); err != nil {
			lgr.Printf("[ERROR] entry sweep interrupted: %v", err)
		}
	}

	lgr.Printf("[INFO] entry sweep completed: %d feeds, %d failed", total, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d feeds failed", failed, total)
	}
	return nil
}

// syncFeed runs one fetch cycle for a feed: fetch, persist entries, record
// the outcome on the feed row. A 304 response is a success that resets the
// error count without touching entries or cache validators.
func (s *Sweeper) syncFeed(ctx context.Context, userID int64, feed *domain.Feed) error {
	result, err := s.fetcher.Fetch(ctx, feed)
	if err != nil {
		if _, uerr := s.feeds.UpdateFeedMetadata(ctx, userID, feed.ID, domain.FeedMetaUpdate{Error: err.Error()}); uerr != nil {
			lgr.Printf("[ERROR] failed to record fetch error for feed %d: %v", feed.ID, uerr)
		}
		return err
	}

	if result.NotModified {
		lgr.Printf("[DEBUG] feed %s not modified", feed.FeedURL)
		if _, err := s.feeds.UpdateFeedMetadata(ctx, userID, feed.ID, domain.FeedMetaUpdate{}); err != nil {
			return fmt.Errorf("record not-modified: %w", err)
		}
		return nil
	}

	if err := s.entries.UpsertEntries(ctx, userID, feed.ID, result.Entries); err != nil {
		if _, uerr := s.feeds.UpdateFeedMetadata(ctx, userID, feed.ID, domain.FeedMetaUpdate{Error: err.Error()}); uerr != nil {
			lgr.Printf("[ERROR] failed to record store error for feed %d: %v", feed.ID, uerr)
		}
		return fmt.Errorf("store entries: %w", err)
	}

	if err := s.feeds.UpdateFeedInfo(ctx, userID, feed.ID, result.Title, result.SiteURL); err != nil {
		lgr.Printf("[WARN] failed to update feed %d info: %v", feed.ID, err)
	}

	meta := domain.FeedMetaUpdate{ETag: result.ETag, LastModified: result.LastModified}
	if _, err := s.feeds.UpdateFeedMetadata(ctx, userID, feed.ID, meta); err != nil {
		return fmt.Errorf("record fetch success: %w", err)
	}

	lgr.Printf("[DEBUG] synced %d entries from %s", len(result.Entries), feed.FeedURL)
	return nil
}

// SweepIcons refreshes the icon of every feed of every user. A feed without
// a discoverable icon is not a failure.
func (s *Sweeper) SweepIcons(ctx context.Context) error {
	users, err := s.users.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var total, failed int64
	for _, user := range users {
		feeds, err := s.feeds.GetFeedsBelowErrorThreshold(ctx, user.ID, s.errorThreshold)
		if err != nil {
			lgr.Printf("[ERROR] failed to list feeds for user %d: %v", user.ID, err)
			failed++
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxConcurrent)

		for _, f := range feeds {
			g.Go(func() error {
				atomic.AddInt64(&total, 1)
				if err := s.syncIcon(gctx, user.ID, f); err != nil {
					atomic.AddInt64(&failed, 1)
					lgr.Printf("[WARN] failed to sync icon for feed %s: %v", f.FeedURL, err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			lgr.Printf("[ERROR] icon sweep interrupted: %v", err)
		}
	}

	lgr.Printf("[INFO] icon sweep completed: %d feeds, %d failed", total, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d icons failed", failed, total)
	}
	return nil
}

func (s *Sweeper) syncIcon(ctx context.Context, userID int64, feed *domain.Feed) error {
	existing, err := s.icons.GetIcon(ctx, userID, feed.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load stored icon: %w", err)
	}

	result, err := s.finder.Fetch(ctx, feed, existing)
	if err != nil {
		return err
	}

	switch {
	case result.NotModified:
		if err := s.icons.TouchIcon(ctx, userID, feed.ID); err != nil {
			return fmt.Errorf("touch icon: %w", err)
		}
	case result.Icon != nil:
		if err := s.icons.UpsertIcon(ctx, userID, result.Icon); err != nil {
			return fmt.Errorf("store icon: %w", err)
		}
	default:
		lgr.Printf("[DEBUG] no icon found for feed %s", feed.FeedURL)
	}
	return nil
}

// RefreshFeed synchronizes a single feed on demand, bypassing the error
// threshold gate. A success resets the error count, bringing a tripped feed
// back into the scheduled rotation.
func (s *Sweeper) RefreshFeed(ctx context.Context, userID, feedID int64) error {
	feed, err := s.feeds.GetFeed(ctx, userID, feedID)
	if err != nil {
		return err
	}
	return s.syncFeed(ctx, userID, feed)
}

// RefreshIcon refreshes a single feed's icon on demand
func (s *Sweeper) RefreshIcon(ctx context.Context, userID, feedID int64) error {
	feed, err := s.feeds.GetFeed(ctx, userID, feedID)
	if err != nil {
		return err
	}
	return s.syncIcon(ctx, userID, feed)
}
