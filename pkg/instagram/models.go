package instagram

import "time"

// Account is the logged-in user as reported by the current user endpoint.
type Account struct {
	ID       string
	Username string
	FullName string
}

// Profile is the public metadata of a target account.
type Profile struct {
	ID               string
	Username         string
	FullName         string
	Biography        string
	Followers        int
	Followees        int
	MediaCount       int
	IsVerified       bool
	IsPrivate        bool
	FollowedByViewer bool
	ExternalURL      string
	ProfilePicURL    string

	// FirstPage is the timeline page embedded in the profile response, if
	// any. Iterators start from it instead of refetching.
	FirstPage *TimelinePage
}

// Viewable reports whether the logged-in account can see the timeline.
func (p *Profile) Viewable() bool {
	return !p.IsPrivate || p.FollowedByViewer
}

// MediaType is the kind of media a post carries.
type MediaType string

const (
	MediaImage   MediaType = "GraphImage"
	MediaVideo   MediaType = "GraphVideo"
	MediaSidecar MediaType = "GraphSidecar"
)

// Post is one timeline item.
type Post struct {
	ID             string
	Shortcode      string
	Type           MediaType
	TakenAt        time.Time
	Caption        string
	Likes          int
	Comments       int
	IsVideo        bool
	VideoViewCount int
	MediaCount     int
	DisplayURL     string
	Location       string
	TaggedUsers    []string
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// TimelinePage is one page of a user's posts.
type TimelinePage struct {
	Count    int
	Posts    []Post
	PageInfo PageInfo
}
