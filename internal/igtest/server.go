// Package igtest runs an in-process stand-in for the Instagram web endpoints
// the client talks to.
package igtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Fault is a canned failure the server answers with instead of data.
type Fault int

const (
	FaultRateLimit Fault = iota + 1
	FaultServerError
	FaultNotFound
	FaultCheckpoint
	FaultChallengeRedirect
	FaultLoginRedirect
	FaultLoginRequired
	// FaultHTML answers 200 with an HTML body where JSON is expected.
	FaultHTML
)

// Post is a fixture post.
type Post struct {
	ID        string
	Shortcode string
	Caption   string
	TakenAt   time.Time
	Likes     int
	Comments  int
	IsVideo   bool
	Views     int
	Children  int
	Location  string
	Tagged    []string
}

// Profile is a fixture account.
type Profile struct {
	ID               string
	Username         string
	FullName         string
	Biography        string
	Followers        int
	Following        int
	IsPrivate        bool
	IsVerified       bool
	FollowedByViewer bool
	ExternalURL      string
	Posts            []Post
}

// Server simulates the profile, timeline, post and current user endpoints.
type Server struct {
	server *httptest.Server

	mu        sync.Mutex
	profiles  map[string]*Profile
	byID      map[string]*Profile
	faults    map[string][]Fault
	requests  []string
	sessionID string
	viewer    string
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{
		profiles: make(map[string]*Profile),
		byID:     make(map[string]*Profile),
		faults:   make(map[string][]Fault),
		viewer:   "viewer",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", s.handleProfile)
	mux.HandleFunc("/api/v1/accounts/current_user/", s.handleCurrentUser)
	mux.HandleFunc("/graphql/query/", s.handleGraphQL)
	mux.HandleFunc("/", s.handlePage)

	s.server = httptest.NewServer(mux)
	return s
}

// URL is the base URL to point a client at.
func (s *Server) URL() string { return s.server.URL }

func (s *Server) Close() { s.server.Close() }

// AddProfile registers a fixture account.
func (s *Server) AddProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.Username] = &cp
	s.byID[p.ID] = &cp
}

// RequireSession makes every endpoint redirect to login unless the
// sessionid cookie equals id.
func (s *Server) RequireSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Fail queues faults for a request key. Keys are profile:<username>,
// timeline:<user id>, post:<shortcode> and current_user. Each request with
// the key consumes one fault until the queue is empty.
func (s *Server) Fail(key string, faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[key] = append(s.faults[key], faults...)
}

// Requests returns the keys of all requests served so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests were made for key.
func (s *Server) Count(key string) int {
	n := 0
	for _, k := range s.Requests() {
		if k == key {
			n++
		}
	}
	return n
}

// begin records the request and returns a queued fault, if any.
func (s *Server) begin(r *http.Request, key string) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, key)

	if s.sessionID != "" {
		if c, err := r.Cookie("sessionid"); err != nil || c.Value != s.sessionID {
			return FaultLoginRedirect, true
		}
	}
	queue := s.faults[key]
	if len(queue) == 0 {
		return 0, false
	}
	s.faults[key] = queue[1:]
	return queue[0], true
}

func (s *Server) lookup(username string) *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[username]
}

func (s *Server) lookupID(id string) *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if f, ok := s.begin(r, "profile:"+username); ok {
		writeFault(w, f)
		return
	}
	p := s.lookup(username)
	if p == nil {
		writeFault(w, FaultNotFound)
		return
	}

	user := map[string]interface{}{
		"id":                 p.ID,
		"username":           p.Username,
		"full_name":          p.FullName,
		"biography":          p.Biography,
		"edge_followed_by":   map[string]int{"count": p.Followers},
		"edge_follow":        map[string]int{"count": p.Following},
		"is_private":         p.IsPrivate,
		"is_verified":        p.IsVerified,
		"followed_by_viewer": p.FollowedByViewer,
		"external_url":       p.ExternalURL,
		"edge_owner_to_timeline_media": map[string]interface{}{
			"count": len(p.Posts),
		},
	}
	writeJSON(w, map[string]interface{}{
		"data":   map[string]interface{}{"user": user},
		"status": "ok",
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.begin(r, "current_user"); ok {
		writeFault(w, f)
		return
	}
	s.mu.Lock()
	viewer := s.viewer
	s.mu.Unlock()
	writeJSON(w, map[string]interface{}{
		"user":   map[string]interface{}{"pk": "1000", "username": viewer, "full_name": "Viewer"},
		"status": "ok",
	})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var vars struct {
		ID        string `json:"id"`
		First     int    `json:"first"`
		After     string `json:"after"`
		Shortcode string `json:"shortcode"`
	}
	if err := json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars); err != nil {
		http.Error(w, "bad variables", http.StatusBadRequest)
		return
	}

	switch r.URL.Query().Get("query_hash") {
	case "e769aa130647d2354c40ea6a439bfc08":
		s.serveTimeline(w, r, vars.ID, vars.After, vars.First)
	case "b3055c01b4b222b8a47dc12b090e4e64":
		s.servePost(w, r, vars.Shortcode)
	default:
		http.Error(w, "unknown query hash", http.StatusBadRequest)
	}
}

// serveTimeline pages with cursors of the form "c<offset>".
func (s *Server) serveTimeline(w http.ResponseWriter, r *http.Request, id, after string, first int) {
	if f, ok := s.begin(r, "timeline:"+id); ok {
		writeFault(w, f)
		return
	}
	p := s.lookupID(id)
	if p == nil {
		writeFault(w, FaultNotFound)
		return
	}
	if first <= 0 {
		first = 12
	}
	offset := 0
	if after != "" {
		offset, _ = strconv.Atoi(strings.TrimPrefix(after, "c"))
	}
	end := offset + first
	if end > len(p.Posts) {
		end = len(p.Posts)
	}
	if offset > end {
		offset = end
	}

	edges := make([]interface{}, 0, end-offset)
	for _, post := range p.Posts[offset:end] {
		edges = append(edges, map[string]interface{}{"node": node(post)})
	}
	cursor := ""
	if end < len(p.Posts) {
		cursor = fmt.Sprintf("c%d", end)
	}
	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"edge_owner_to_timeline_media": map[string]interface{}{
					"count": len(p.Posts),
					"page_info": map[string]interface{}{
						"has_next_page": cursor != "",
						"end_cursor":    cursor,
					},
					"edges": edges,
				},
			},
		},
		"status": "ok",
	})
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request, shortcode string) {
	if f, ok := s.begin(r, "post:"+shortcode); ok {
		writeFault(w, f)
		return
	}
	s.mu.Lock()
	var found *Post
	for _, p := range s.profiles {
		for i := range p.Posts {
			if p.Posts[i].Shortcode == shortcode {
				found = &p.Posts[i]
			}
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"shortcode_media": nil}, "status": "ok"})
		return
	}
	writeJSON(w, map[string]interface{}{
		"data":   map[string]interface{}{"shortcode_media": node(*found)},
		"status": "ok",
	})
}

// handlePage serves the public HTML profile page at /<username>/.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	username := strings.Trim(r.URL.Path, "/")
	if f, ok := s.begin(r, "page:"+username); ok {
		writeFault(w, f)
		return
	}
	p := s.lookup(username)
	if p == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head>
<meta property="og:description" content="%d Followers, %d Following, %d Posts - See Instagram photos and videos from %s (@%s)">
<meta property="instapp:owner_user_id" content="%s">
</head><body></body></html>`, p.Followers, p.Following, len(p.Posts), p.FullName, p.Username, p.ID)
}

func node(p Post) map[string]interface{} {
	typename := "GraphImage"
	if p.IsVideo {
		typename = "GraphVideo"
	}
	n := map[string]interface{}{
		"id":                 p.ID,
		"shortcode":          p.Shortcode,
		"__typename":         typename,
		"taken_at_timestamp": p.TakenAt.Unix(),
		"is_video":           p.IsVideo,
		"display_url":        "https://cdn.example/" + p.Shortcode + ".jpg",
		"edge_liked_by":      map[string]int{"count": p.Likes},
		"edge_media_to_comment": map[string]int{
			"count": p.Comments,
		},
		"edge_media_to_caption": map[string]interface{}{
			"edges": []interface{}{map[string]interface{}{"node": map[string]string{"text": p.Caption}}},
		},
	}
	if p.IsVideo {
		n["video_view_count"] = p.Views
	}
	if p.Children > 1 {
		n["__typename"] = "GraphSidecar"
		children := make([]interface{}, p.Children)
		for i := range children {
			children[i] = map[string]interface{}{"node": map[string]string{"id": fmt.Sprintf("%s-%d", p.ID, i)}}
		}
		n["edge_sidecar_to_children"] = map[string]interface{}{"edges": children}
	}
	if p.Location != "" {
		n["location"] = map[string]string{"name": p.Location}
	}
	if len(p.Tagged) > 0 {
		tagged := make([]interface{}, 0, len(p.Tagged))
		for _, u := range p.Tagged {
			tagged = append(tagged, map[string]interface{}{
				"node": map[string]interface{}{"user": map[string]string{"username": u}},
			})
		}
		n["edge_media_to_tagged_user"] = map[string]interface{}{"edges": tagged}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeFault(w http.ResponseWriter, f Fault) {
	switch f {
	case FaultRateLimit:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "Please wait a few minutes before you try again.",
			"status":  "fail",
		})
	case FaultServerError:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Internal server error", "status": "fail"})
	case FaultNotFound:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "User not found", "status": "fail"})
	case FaultCheckpoint:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":        "checkpoint_required",
			"checkpoint_url": "/challenge/action/",
			"status":         "fail",
		})
	case FaultChallengeRedirect:
		w.Header().Set("Location", "/challenge/?next=/")
		w.WriteHeader(http.StatusFound)
	case FaultLoginRedirect:
		w.Header().Set("Location", "/accounts/login/?next=/")
		w.WriteHeader(http.StatusFound)
	case FaultLoginRequired:
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message":           "login_required",
			"status":            "fail",
			"requires_to_login": true,
		})
	case FaultHTML:
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Please log in</body></html>"))
	}
}
