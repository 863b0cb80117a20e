package scraper

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/models"
)

var (
	hashtagPattern = regexp.MustCompile(`(?:^|[^&\p{L}\p{N}_])#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`(?:^|[^\w])@(\w(?:[\w.]{0,28}\w)?)`)
)

// Hashtags returns the lowercased hashtags of a caption in order of appearance.
func Hashtags(caption string) []string {
	return captionTokens(hashtagPattern, caption)
}

// Mentions returns the lowercased @-mentions of a caption.
func Mentions(caption string) []string {
	return captionTokens(mentionPattern, caption)
}

func captionTokens(re *regexp.Regexp, caption string) []string {
	matches := re.FindAllStringSubmatch(caption, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// EngagementScore is the raw interaction count of a post.
func EngagementScore(likes, comments int) int {
	return likes + comments
}

// EngagementRate is likes plus comments as a percentage of followers, or 0
// without a follower count.
func EngagementRate(likes, comments, followers int) float64 {
	if followers <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(followers) * 100
}

func profileRecord(p *instagram.Profile, at time.Time) models.ProfileRecord {
	return models.ProfileRecord{
		Username:    p.Username,
		FullName:    p.FullName,
		Biography:   p.Biography,
		Followers:   p.Followers,
		Followees:   p.Followees,
		TotalPosts:  p.MediaCount,
		IsVerified:  p.IsVerified,
		IsPrivate:   p.IsPrivate,
		ExternalURL: p.ExternalURL,
		ScrapedAt:   at.UTC(),
	}
}

// postRecord derives the exported record. A post without a shortcode
// cannot be addressed and is rejected as a parsing error.
func postRecord(username string, p *instagram.Post, followers int) (models.PostRecord, error) {
	if p == nil || p.Shortcode == "" {
		return models.PostRecord{}, errs.New(errs.ErrorTypeParsing, 0, "post without shortcode").WithTarget(username)
	}

	hashtags := Hashtags(p.Caption)
	mentions := Mentions(p.Caption)
	tagged := append([]string{}, p.TaggedUsers...)
	mediaType := "Image"
	if p.IsVideo {
		mediaType = "Video"
	}

	rec := models.PostRecord{
		Username:        username,
		Shortcode:       p.Shortcode,
		URL:             instagram.PostURL(p.Shortcode),
		Date:            p.TakenAt.UTC(),
		Timestamp:       p.TakenAt.Unix(),
		Caption:         p.Caption,
		Likes:           p.Likes,
		CommentsCount:   p.Comments,
		IsVideo:         p.IsVideo,
		MediaType:       mediaType,
		MediaCount:      p.MediaCount,
		Hashtags:        hashtags,
		Mentions:        mentions,
		HashtagCount:    len(hashtags),
		MentionCount:    len(mentions),
		CaptionLength:   utf8.RuneCountInString(p.Caption),
		LocationName:    p.Location,
		TaggedUsers:     tagged,
		TaggedCount:     len(tagged),
		EngagementScore: EngagementScore(p.Likes, p.Comments),
		EngagementRate:  EngagementRate(p.Likes, p.Comments, followers),
	}
	if p.IsVideo {
		rec.VideoViewCount = p.VideoViewCount
	}
	return rec, nil
}
