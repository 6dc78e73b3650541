// Package fetch implements the feed fetch and parse pipeline: conditional
// HTTP GET, streaming RSS/Atom parsing and normalization into entry records.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/feedsmith/feedsmith/pkg/domain"
	"github.com/feedsmith/feedsmith/pkg/fetch/dates"
	"github.com/feedsmith/feedsmith/pkg/throttle"
)

// maxFeedBytes caps how much of a feed document is read, oversized bodies are
// truncated at the parser
const maxFeedBytes = 5 << 20

// Result is the outcome of one fetch attempt. NotModified set means the
// remote returned 304 and the remaining fields are empty; callers must not
// touch entries or cache tokens on that path.
type Result struct {
	NotModified  bool
	Title        string
	SiteURL      string
	Entries      []domain.Entry
	ETag         string
	LastModified string
}

// Fetcher downloads and parses feed documents. All network calls go through
// the shared bounded pool; per-feed serialization is done via the keyed mutex
// under "feed-fetch-{id}".
type Fetcher struct {
	client    *http.Client
	h1client  *http.Client // for feeds that opt out of HTTP/2
	pool      *throttle.Pool
	locks     *throttle.KeyedMutex
	userAgent string
	sanitizer *bluemonday.Policy
}

// New creates a fetcher sharing the given pool and mutex registry
func New(pool *throttle.Pool, locks *throttle.KeyedMutex, timeout time.Duration, userAgent string) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	h1transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{}, // disables HTTP/2
	}

	return &Fetcher{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		h1client:  &http.Client{Timeout: timeout, Transport: h1transport},
		pool:      pool,
		locks:     locks,
		userAgent: userAgent,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Fetch performs a conditional GET for the feed's document and parses the
// response into normalized entries. Returns NotModified result on 304,
// NetworkError/ParseError/DateError on failure.
func (f *Fetcher) Fetch(ctx context.Context, feed *domain.Feed) (*Result, error) {
	release := f.locks.Lock(fmt.Sprintf("feed-fetch-%d", feed.ID))
	defer release()

	var result *Result
	err := f.pool.Do(ctx, func() error {
		var err error
		result, err = f.fetchLocked(ctx, feed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) fetchLocked(ctx context.Context, feed *domain.Feed) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	ua := f.userAgent
	if feed.UserAgent != "" {
		ua = feed.UserAgent
	}
	req.Header.Set("User-Agent", ua)

	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	client := f.client
	if feed.DisableHTTP2 {
		client = f.h1client
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: feed.FeedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		lgr.Printf("[DEBUG] feed %s not modified", feed.FeedURL)
		return &Result{NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &NetworkError{URL: feed.FeedURL, StatusCode: resp.StatusCode, Snippet: strings.TrimSpace(string(snippet))}
	}

	// parse straight off the wire, bounded
	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &ParseError{URL: feed.FeedURL, Err: err}
	}

	result := &Result{
		Title:        parsed.Title,
		SiteURL:      parsed.Link,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Entries:      make([]domain.Entry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		entry, err := f.normalize(feed, item)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue // item rejected at the boundary, dedup impossible without guid
		}
		result.Entries = append(result.Entries, *entry)
	}

	return result, nil
}

// normalize converts a raw parsed item into an entry candidate. Items without
// a guid are skipped (nil, nil); an unresolvable publish date is a hard error.
func (f *Fetcher) normalize(feed *domain.Feed, item *gofeed.Item) (*domain.Entry, error) {
	guid := item.GUID
	if guid == "" {
		lgr.Printf("[WARN] skipping item without guid in feed %s (title: %q)", feed.FeedURL, item.Title)
		return nil, nil
	}

	published, err := f.resolveDate(guid, item)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "untitled"
	}

	summary := strings.TrimSpace(f.sanitizer.Sanitize(item.Description))
	if summary == "" {
		summary = "no description"
	}

	var author string
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	return &domain.Entry{
		FeedID:    feed.ID,
		GUID:      guid,
		Title:     title,
		Link:      item.Link,
		Published: published,
		Author:    author,
		Summary:   summary,
		Content:   f.sanitizer.Sanitize(item.Content),
	}, nil
}

// resolveDate resolves an item's publish instant through three fallbacks:
// the parser's primary date, its secondary (updated) date, and the raw date
// string run through the normalizer.
func (f *Fetcher) resolveDate(guid string, item *gofeed.Item) (time.Time, error) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, nil
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, nil
	}

	raw := rawDate(item)
	if raw == "" {
		return time.Time{}, &DateError{GUID: guid, Err: fmt.Errorf("no date field present")}
	}

	ts, err := dates.Normalize(raw)
	if err != nil {
		return time.Time{}, &DateError{GUID: guid, Raw: raw, Err: err}
	}
	return ts, nil
}

// rawDate returns the item's best textual date candidate: the plain published
// or updated strings, then the dc namespace date extension.
func rawDate(item *gofeed.Item) string {
	if item.Published != "" {
		return item.Published
	}
	if item.Updated != "" {
		return item.Updated
	}
	if dc, ok := item.Extensions["dc"]; ok {
		if exts, ok := dc["date"]; ok && len(exts) > 0 {
			return exts[0].Value
		}
	}
	return ""
}
