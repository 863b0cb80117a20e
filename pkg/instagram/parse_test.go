package instagram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igharvest/pkg/errors"
)

const profileWithMedia = `{
  "data": {"user": {
    "id": "42", "username": "natgeo", "full_name": "Nat Geo",
    "edge_followed_by": {"count": 10}, "edge_follow": {"count": 2},
    "is_private": true, "followed_by_viewer": false,
    "edge_owner_to_timeline_media": {
      "count": 30,
      "page_info": {"has_next_page": true, "end_cursor": "abc"},
      "edges": [{"node": {
        "id": "1", "shortcode": "A1", "taken_at_timestamp": 1700000000,
        "edge_media_preview_like": {"count": 7},
        "edge_media_to_parent_comment": {"count": 3}
      }}]
    }
  }},
  "status": "ok"
}`

func TestParseProfileEmbeddedPage(t *testing.T) {
	p, err := parseProfile([]byte(profileWithMedia), "natgeo")
	require.NoError(t, err)

	assert.False(t, p.Viewable())
	require.NotNil(t, p.FirstPage)
	assert.Equal(t, "abc", p.FirstPage.PageInfo.EndCursor)
	require.Len(t, p.FirstPage.Posts, 1)

	post := p.FirstPage.Posts[0]
	assert.Equal(t, 7, post.Likes, "falls back to preview like count")
	assert.Equal(t, 3, post.Comments, "falls back to parent comment count")
	assert.Equal(t, MediaImage, post.Type)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), post.TakenAt)
}

func TestParseProfileErrors(t *testing.T) {
	_, err := parseProfile([]byte(`{"data":{"user":null}}`), "ghost")
	assert.Equal(t, errs.ClassItem, errs.ClassOf(err))

	_, err = parseProfile([]byte(`<html>`), "ghost")
	assert.Equal(t, errs.ClassItem, errs.ClassOf(err))

	_, err = parseProfile([]byte(`{"data":{"user":{"username":"x"}}}`), "x")
	assert.ErrorContains(t, err, "no user id")
}

func TestParseTimelineRequiresMediaEdge(t *testing.T) {
	_, err := parseTimeline([]byte(`{"data":{"user":{}}}`), "42")
	assert.Error(t, err)
}

func TestParseAccount(t *testing.T) {
	a, err := parseAccount([]byte(`{"user":{"pk":99,"username":"me"}}`))
	require.NoError(t, err)
	assert.Equal(t, "99", a.ID)

	_, err = parseAccount([]byte(`{"status":"ok"}`))
	assert.True(t, errs.IsFatal(err))
}

func TestParseProfileHTML(t *testing.T) {
	page := `<html><head>
<meta property="og:description" content="12.5K Followers, 1,001 Following, 78 Posts - See Instagram photos and videos from Jane Doe (@jane.doe)">
<meta property="instapp:owner_user_id" content="777">
</head></html>`

	p, err := ParseProfileHTML(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "jane.doe", p.Username)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, "777", p.ID)
	assert.Equal(t, 12500, p.Followers)
	assert.Equal(t, 1001, p.Followees)
	assert.Equal(t, 78, p.MediaCount)

	_, err = ParseProfileHTML(strings.NewReader("<html><body>login</body></html>"))
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 1234, parseCount("1,234"))
	assert.Equal(t, 3000000, parseCount("3M"))
	assert.Equal(t, 0, parseCount("lots"))
}
