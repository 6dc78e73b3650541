package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// jobInfo is the API shape of a job
type jobInfo struct {
	Name         string     `json:"name"`
	Paused       bool       `json:"paused"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// feedInfo is the API shape of a feed
type feedInfo struct {
	ID           int64      `json:"id"`
	CategoryID   int64      `json:"category_id"`
	Title        string     `json:"title"`
	FeedURL      string     `json:"feed_url"`
	SiteURL      string     `json:"site_url,omitempty"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
	ErrorCount   int        `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	DisableHTTP2 bool       `json:"disable_http2,omitempty"`
}

// entryInfo is the API shape of an entry
type entryInfo struct {
	ID        int64      `json:"id"`
	FeedID    int64      `json:"feed_id"`
	GUID      string     `json:"guid"`
	Title     string     `json:"title"`
	Link      string     `json:"link,omitempty"`
	Published time.Time  `json:"published"`
	Author    string     `json:"author,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Content   string     `json:"content,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	StarredAt *time.Time `json:"starred_at,omitempty"`
}

func toJobInfo(j *domain.Job) jobInfo {
	info := jobInfo{
		Name:      j.Name,
		Paused:    j.Paused(),
		LastRunAt: j.LastRunAt,
		LastError: j.LastError,
	}
	if j.LastDuration > 0 {
		info.LastDuration = j.LastDuration.String()
	}
	return info
}

func toFeedInfo(f *domain.Feed) feedInfo {
	return feedInfo{
		ID:           f.ID,
		CategoryID:   f.CategoryID,
		Title:        f.Title,
		FeedURL:      f.FeedURL,
		SiteURL:      f.SiteURL,
		FetchedAt:    f.FetchedAt,
		ErrorCount:   f.ErrorCount,
		LastError:    f.LastError,
		DisableHTTP2: f.DisableHTTP2,
	}
}

func toEntryInfo(e *domain.Entry) entryInfo {
	return entryInfo{
		ID:        e.ID,
		FeedID:    e.FeedID,
		GUID:      e.GUID,
		Title:     e.Title,
		Link:      e.Link,
		Published: e.Published,
		Author:    e.Author,
		Summary:   e.Summary,
		Content:   e.Content,
		ReadAt:    e.ReadAt,
		StarredAt: e.StarredAt,
	}
}

// listJobsHandler returns all registered jobs with their run state
func (s *Server) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	infos := make([]jobInfo, len(jobs))
	for i, j := range jobs {
		infos[i] = toJobInfo(j)
	}
	RenderJSON(w, r, http.StatusOK, infos)
}

// runJobHandler triggers the named job synchronously
func (s *Server) runJobHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.jobs.Run(r.Context(), name); err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"result": "completed", "job": name})
}

func (s *Server) pauseJobHandler(w http.ResponseWriter, r *http.Request) {
	s.setJobPaused(w, r, true)
}

func (s *Server) resumeJobHandler(w http.ResponseWriter, r *http.Request) {
	s.setJobPaused(w, r, false)
}

func (s *Server) setJobPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	name := r.PathValue("name")
	if err := s.jobs.SetPaused(r.Context(), name, paused); err != nil {
		renderError(w, r, err)
		return
	}
	result := "resumed"
	if paused {
		result = "paused"
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"result": result, "job": name})
}

// listFeedsHandler returns the user's feeds
func (s *Server) listFeedsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	feeds, err := s.store.GetFeeds(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	infos := make([]feedInfo, len(feeds))
	for i, f := range feeds {
		infos[i] = toFeedInfo(f)
	}
	RenderJSON(w, r, http.StatusOK, infos)
}

func (s *Server) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	feedID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	feed, err := s.store.GetFeed(r.Context(), userID, feedID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, toFeedInfo(feed))
}

// refreshFeedHandler synchronizes a single feed right away
func (s *Server) refreshFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	feedID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.sweeper.RefreshFeed(r.Context(), userID, feedID); err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"result": "refreshed"})
}

func (s *Server) refreshIconHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	feedID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.sweeper.RefreshIcon(r.Context(), userID, feedID); err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"result": "refreshed"})
}

// listEntriesHandler returns a page of the feed's entries, newest first
func (s *Server) listEntriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	feedID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)

	entries, err := s.store.GetEntries(r.Context(), userID, feedID, limit, offset)
	if err != nil {
		renderError(w, r, err)
		return
	}

	infos := make([]entryInfo, len(entries))
	for i, e := range entries {
		infos[i] = toEntryInfo(e)
	}
	RenderJSON(w, r, http.StatusOK, infos)
}

// markReadHandler toggles the entry's read state, ?set=false clears it
func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	set := r.URL.Query().Get("set") != "false"
	if err := s.store.MarkRead(r.Context(), userID, entryID, set); err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]bool{"read": set})
}

func (s *Server) markStarredHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	set := r.URL.Query().Get("set") != "false"
	if err := s.store.MarkStarred(r.Context(), userID, entryID, set); err != nil {
		renderError(w, r, err)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]bool{"starred": set})
}

// pathID parses a numeric path value, responding with 400 on garbage
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		RenderJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
