package instagram

import (
	"time"

	"github.com/tidwall/gjson"

	errs "igharvest/pkg/errors"
)

// parseProfile reads the data.user object of a web_profile_info response.
func parseProfile(body []byte, username string) (*Profile, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "profile response is not valid JSON").WithTarget(username)
	}
	user := gjson.GetBytes(body, "data.user")
	if !user.Exists() || user.Type == gjson.Null {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "profile not found").WithTarget(username)
	}

	p := &Profile{
		ID:               user.Get("id").String(),
		Username:         user.Get("username").String(),
		FullName:         user.Get("full_name").String(),
		Biography:        user.Get("biography").String(),
		Followers:        int(user.Get("edge_followed_by.count").Int()),
		Followees:        int(user.Get("edge_follow.count").Int()),
		MediaCount:       int(user.Get("edge_owner_to_timeline_media.count").Int()),
		IsVerified:       user.Get("is_verified").Bool(),
		IsPrivate:        user.Get("is_private").Bool(),
		FollowedByViewer: user.Get("followed_by_viewer").Bool(),
		ExternalURL:      user.Get("external_url").String(),
		ProfilePicURL:    user.Get("profile_pic_url_hd").String(),
	}
	if p.Username == "" {
		p.Username = username
	}
	if p.ID == "" {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "profile response has no user id").WithTarget(username)
	}

	if media := user.Get("edge_owner_to_timeline_media"); media.Get("edges").Exists() {
		page := parseMedia(media)
		p.FirstPage = &page
	}
	return p, nil
}

// parseTimeline reads a graphql timeline page.
func parseTimeline(body []byte, userID string) (*TimelinePage, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "timeline response is not valid JSON").WithTarget(userID)
	}
	media := gjson.GetBytes(body, "data.user.edge_owner_to_timeline_media")
	if !media.Exists() {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "timeline response has no media edge").WithTarget(userID)
	}
	page := parseMedia(media)
	return &page, nil
}

// parsePost reads data.shortcode_media from a post detail response.
func parsePost(body []byte, shortcode string) (*Post, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "post response is not valid JSON").WithTarget(shortcode)
	}
	node := gjson.GetBytes(body, "data.shortcode_media")
	if !node.Exists() || node.Type == gjson.Null {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "post not found").WithTarget(shortcode)
	}
	post := parseNode(node)
	return &post, nil
}

// parseAccount reads the current user response.
func parseAccount(body []byte) (*Account, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "current user response is not valid JSON")
	}
	user := gjson.GetBytes(body, "user")
	if !user.Exists() {
		return nil, errs.New(errs.ErrorTypeAuth, 401, "no logged-in user in response")
	}
	id := user.Get("pk").String()
	if id == "" {
		id = user.Get("id").String()
	}
	return &Account{
		ID:       id,
		Username: user.Get("username").String(),
		FullName: user.Get("full_name").String(),
	}, nil
}

func parseMedia(media gjson.Result) TimelinePage {
	page := TimelinePage{
		Count: int(media.Get("count").Int()),
		PageInfo: PageInfo{
			HasNextPage: media.Get("page_info.has_next_page").Bool(),
			EndCursor:   media.Get("page_info.end_cursor").String(),
		},
	}
	media.Get("edges").ForEach(func(_, edge gjson.Result) bool {
		page.Posts = append(page.Posts, parseNode(edge.Get("node")))
		return true
	})
	return page
}

func parseNode(node gjson.Result) Post {
	p := Post{
		ID:             node.Get("id").String(),
		Shortcode:      node.Get("shortcode").String(),
		Type:           MediaType(node.Get("__typename").String()),
		Caption:        node.Get("edge_media_to_caption.edges.0.node.text").String(),
		IsVideo:        node.Get("is_video").Bool(),
		VideoViewCount: int(node.Get("video_view_count").Int()),
		DisplayURL:     node.Get("display_url").String(),
		Location:       node.Get("location.name").String(),
		MediaCount:     1,
	}
	if ts := node.Get("taken_at_timestamp").Int(); ts > 0 {
		p.TakenAt = time.Unix(ts, 0).UTC()
	}

	if likes := node.Get("edge_liked_by.count"); likes.Exists() {
		p.Likes = int(likes.Int())
	} else {
		p.Likes = int(node.Get("edge_media_preview_like.count").Int())
	}
	if comments := node.Get("edge_media_to_comment.count"); comments.Exists() {
		p.Comments = int(comments.Int())
	} else {
		p.Comments = int(node.Get("edge_media_to_parent_comment.count").Int())
	}

	if children := node.Get("edge_sidecar_to_children.edges"); children.IsArray() {
		if n := len(children.Array()); n > 0 {
			p.MediaCount = n
		}
	}
	if p.Type == "" {
		switch {
		case p.MediaCount > 1:
			p.Type = MediaSidecar
		case p.IsVideo:
			p.Type = MediaVideo
		default:
			p.Type = MediaImage
		}
	}

	for _, u := range node.Get("edge_media_to_tagged_user.edges.#.node.user.username").Array() {
		p.TaggedUsers = append(p.TaggedUsers, u.String())
	}
	return p
}
