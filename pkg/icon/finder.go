// Package icon discovers and downloads a feed's representative image: the
// conventional /favicon.ico first, then whatever the site's HTML advertises
// via icon link tags.
package icon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"

	"github.com/feedsmith/feedsmith/pkg/domain"
	"github.com/feedsmith/feedsmith/pkg/fetch"
	"github.com/feedsmith/feedsmith/pkg/throttle"
)

// maxIconBytes caps a single icon download
const maxIconBytes = 1 << 20

// rel values scanned in HTML, in preference order
var iconRels = []string{"icon", "shortcut icon", "apple-touch-icon"}

// Result is the outcome of one icon fetch. NotModified mirrors the feed
// pipeline's 304 handling; Icon nil with nil error means no icon discoverable,
// a normal non-fatal outcome.
type Result struct {
	NotModified bool
	Icon        *domain.Icon
}

// Finder locates and downloads feed icons. Serialized per feed under the
// "feed-icon-{id}" mutex namespace, distinct from entry fetches so the two
// can overlap for the same feed without duplicating themselves.
type Finder struct {
	client    *http.Client
	pool      *throttle.Pool
	locks     *throttle.KeyedMutex
	userAgent string
}

// NewFinder creates an icon finder sharing the given pool and mutex registry
func NewFinder(pool *throttle.Pool, locks *throttle.KeyedMutex, timeout time.Duration, userAgent string) *Finder {
	return &Finder{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pool:      pool,
		locks:     locks,
		userAgent: userAgent,
	}
}

// Fetch resolves and downloads the feed's icon, negotiating conditional
// caching against the previously stored icon. A feed without a site URL or a
// discoverable icon yields a nil Icon, not an error.
func (f *Finder) Fetch(ctx context.Context, feed *domain.Feed, existing *domain.Icon) (*Result, error) {
	release := f.locks.Lock(fmt.Sprintf("feed-icon-%d", feed.ID))
	defer release()

	if feed.SiteURL == "" {
		return &Result{}, nil
	}

	var result *Result
	err := f.pool.Do(ctx, func() error {
		var err error
		result, err = f.fetchLocked(ctx, feed, existing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Finder) fetchLocked(ctx context.Context, feed *domain.Feed, existing *domain.Icon) (*Result, error) {
	rootURL, err := resolveURL(feed.SiteURL, "/favicon.ico")
	if err != nil {
		return nil, fmt.Errorf("resolve favicon url: %w", err)
	}

	result, err := f.download(ctx, rootURL, existing)
	if err == nil {
		return stamp(result, feed.ID), nil
	}
	lgr.Printf("[DEBUG] no root favicon for %s: %v", feed.SiteURL, err)

	// fall back to scanning the site HTML for icon links
	iconURL, err := f.discoverFromHTML(ctx, feed.SiteURL)
	if err != nil {
		lgr.Printf("[DEBUG] icon discovery failed for %s: %v", feed.SiteURL, err)
		return &Result{}, nil
	}

	result, err = f.download(ctx, iconURL, existing)
	if err != nil {
		lgr.Printf("[DEBUG] icon download failed for %s: %v", iconURL, err)
		return &Result{}, nil
	}
	return stamp(result, feed.ID), nil
}

// stamp ties a downloaded icon to its feed
func stamp(r *Result, feedID int64) *Result {
	if r.Icon != nil {
		r.Icon.FeedID = feedID
	}
	return r
}

// download fetches one candidate URL with conditional headers taken from the
// stored icon. Non-image content types are rejected so HTML error pages don't
// get stored as icons.
func (f *Finder) download(ctx context.Context, iconURL string, existing *domain.Icon) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	if existing != nil {
		if existing.ETag != "" {
			req.Header.Set("If-None-Match", existing.ETag)
		}
		if existing.LastModified != "" {
			req.Header.Set("If-Modified-Since", existing.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &fetch.NetworkError{URL: iconURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &fetch.NetworkError{URL: iconURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") &&
		!strings.Contains(contentType, "octet-stream") && !strings.Contains(contentType, "icon") {
		return nil, fmt.Errorf("unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return nil, &fetch.NetworkError{URL: iconURL, Err: err}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty icon body")
	}

	return &Result{Icon: &domain.Icon{
		Data:         data,
		ContentType:  contentType,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}}, nil
}

// discoverFromHTML fetches the site page and scans link tags for an icon URL
func (f *Finder) discoverFromHTML(ctx context.Context, siteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &fetch.NetworkError{URL: siteURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &fetch.NetworkError{URL: siteURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	candidates := map[string]string{}
	doc.Find("link[rel]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(strings.TrimSpace(sel.AttrOr("rel", "")))
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		if _, seen := candidates[rel]; !seen {
			candidates[rel] = href
		}
	})

	for _, rel := range iconRels {
		if href, ok := candidates[rel]; ok {
			return resolveURL(siteURL, href)
		}
	}
	return "", fmt.Errorf("no icon link in html")
}

// resolveURL resolves ref against base, handling both absolute and relative refs
func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref url %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
