package models

import (
	"strconv"
	"strings"
	"time"
)

// ProfileRecord is the exported snapshot of a scraped profile.
type ProfileRecord struct {
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	Biography   string    `json:"biography"`
	Followers   int       `json:"followers"`
	Followees   int       `json:"followees"`
	TotalPosts  int       `json:"total_posts"`
	IsVerified  bool      `json:"is_verified"`
	IsPrivate   bool      `json:"is_private"`
	ExternalURL string    `json:"external_url"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// PostRecord is one exported post with derived text and engagement fields.
// EngagementScore is likes plus comments; EngagementRate is that sum as a
// percentage of followers.
type PostRecord struct {
	Username        string    `json:"username"`
	Shortcode       string    `json:"shortcode"`
	URL             string    `json:"url"`
	Date            time.Time `json:"date"`
	Timestamp       int64     `json:"timestamp"`
	Caption         string    `json:"caption"`
	Likes           int       `json:"likes"`
	CommentsCount   int       `json:"comments_count"`
	IsVideo         bool      `json:"is_video"`
	MediaType       string    `json:"media_type"`
	MediaCount      int       `json:"media_count"`
	Hashtags        []string  `json:"hashtags"`
	Mentions        []string  `json:"mentions"`
	HashtagCount    int       `json:"hashtag_count"`
	MentionCount    int       `json:"mention_count"`
	CaptionLength   int       `json:"caption_length"`
	LocationName    string    `json:"location_name,omitempty"`
	TaggedUsers     []string  `json:"tagged_users"`
	TaggedCount     int       `json:"tagged_count"`
	EngagementScore int       `json:"engagement_score"`
	EngagementRate  float64   `json:"engagement_rate"`
	VideoViewCount  int       `json:"video_view_count,omitempty"`
}

// PostCSVHeader is the column order of the posts CSV.
var PostCSVHeader = []string{
	"username", "shortcode", "url", "date", "timestamp", "caption",
	"likes", "comments_count", "is_video", "media_type", "media_count",
	"hashtags", "mentions", "hashtag_count", "mention_count", "caption_length",
	"location_name", "tagged_users", "tagged_count", "engagement_score", "engagement_rate",
	"video_view_count",
}

// CSVRow renders the record in PostCSVHeader order. List fields are joined
// with "|".
func (p PostRecord) CSVRow() []string {
	return []string{
		p.Username,
		p.Shortcode,
		p.URL,
		p.Date.UTC().Format(time.RFC3339),
		strconv.FormatInt(p.Timestamp, 10),
		p.Caption,
		strconv.Itoa(p.Likes),
		strconv.Itoa(p.CommentsCount),
		strconv.FormatBool(p.IsVideo),
		p.MediaType,
		strconv.Itoa(p.MediaCount),
		strings.Join(p.Hashtags, "|"),
		strings.Join(p.Mentions, "|"),
		strconv.Itoa(p.HashtagCount),
		strconv.Itoa(p.MentionCount),
		strconv.Itoa(p.CaptionLength),
		p.LocationName,
		strings.Join(p.TaggedUsers, "|"),
		strconv.Itoa(p.TaggedCount),
		strconv.Itoa(p.EngagementScore),
		strconv.FormatFloat(p.EngagementRate, 'f', 4, 64),
		strconv.Itoa(p.VideoViewCount),
	}
}

// Status is the per-account result of a scrape run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusAborted marks the account whose scrape hit a fatal error.
	StatusAborted Status = "aborted"
	// StatusSkipped marks accounts not attempted after a fatal error.
	StatusSkipped Status = "skipped"
)

// AccountResult is what a single target produced.
type AccountResult struct {
	Username     string         `json:"username"`
	Status       Status         `json:"status"`
	PostsScraped int            `json:"posts_scraped"`
	PostsFailed  int            `json:"posts_failed"`
	Followers    int            `json:"followers"`
	Error        string         `json:"error,omitempty"`
	Profile      *ProfileRecord `json:"-"`
	Posts        []PostRecord   `json:"-"`
	Files        []string       `json:"files,omitempty"`
}

// SummaryCSVHeader is the column order of the final summary CSV.
var SummaryCSVHeader = []string{"username", "posts_scraped", "status", "followers"}

func (r AccountResult) CSVRow() []string {
	return []string{
		r.Username,
		strconv.Itoa(r.PostsScraped),
		string(r.Status),
		strconv.Itoa(r.Followers),
	}
}

// ExportSummary is embedded in the complete JSON export.
type ExportSummary struct {
	TotalPostsScraped int       `json:"total_posts_scraped"`
	ScrapingMethod    string    `json:"scraping_method"`
	ScrapedAt         time.Time `json:"scraped_at"`
	RunID             string    `json:"run_id"`
}

// Export is the full per-account JSON document.
type Export struct {
	ProfileInfo ProfileRecord `json:"profile_info"`
	Posts       []PostRecord  `json:"posts"`
	Summary     ExportSummary `json:"summary"`
}

// RunSummary aggregates one multi-account run.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Accounts   []AccountResult `json:"accounts"`
	// SummaryFile is the FINAL_SUMMARY csv written at the end of the run.
	SummaryFile string `json:"summary_file,omitempty"`
}

// TotalPosts sums posts scraped across accounts.
func (s RunSummary) TotalPosts() int {
	total := 0
	for _, a := range s.Accounts {
		total += a.PostsScraped
	}
	return total
}

// Count returns how many accounts ended with status.
func (s RunSummary) Count(status Status) int {
	n := 0
	for _, a := range s.Accounts {
		if a.Status == status {
			n++
		}
	}
	return n
}
