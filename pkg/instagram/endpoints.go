package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	ProfileEndpoint     = "/api/v1/users/web_profile_info/"
	CurrentUserEndpoint = "/api/v1/accounts/current_user/"
	GraphQLEndpoint     = "/graphql/query/"

	// TimelineQueryHash pages through a user's posts
	TimelineQueryHash = "e769aa130647d2354c40ea6a439bfc08"
	// PostQueryHash fetches a single post by shortcode
	PostQueryHash = "b3055c01b4b222b8a47dc12b090e4e64"

	DefaultPageSize = 12
	MaxPageSize     = 50
)

// endpoints builds request URLs against a configurable base so tests can
// point the client at a local server.
type endpoints struct {
	base string
}

func (e endpoints) profile(username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", e.base, ProfileEndpoint, params.Encode())
}

func (e endpoints) currentUser() string {
	return fmt.Sprintf("%s%s?edit=true", e.base, CurrentUserEndpoint)
}

func (e endpoints) timeline(userID, after string, first int) string {
	if first <= 0 {
		first = DefaultPageSize
	} else if first > MaxPageSize {
		first = MaxPageSize
	}
	vars := map[string]interface{}{"id": userID, "first": first}
	if after != "" {
		vars["after"] = after
	}
	return e.graphql(TimelineQueryHash, vars)
}

func (e endpoints) post(shortcode string) string {
	return e.graphql(PostQueryHash, map[string]interface{}{"shortcode": shortcode})
}

func (e endpoints) profilePage(username string) string {
	return fmt.Sprintf("%s/%s/", e.base, username)
}

func (e endpoints) graphql(hash string, vars map[string]interface{}) string {
	// map keys marshal sorted, so URLs are stable
	encoded, _ := json.Marshal(vars)
	params := url.Values{}
	params.Set("query_hash", hash)
	params.Set("variables", string(encoded))
	return fmt.Sprintf("%s%s?%s", e.base, GraphQLEndpoint, params.Encode())
}

// PostURL is the public permalink of a post.
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}
	return true
}

// SanitizeUsername strips a leading @, a profile URL prefix and trailing
// slashes or spaces.
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	for _, prefix := range []string{"https://www.instagram.com/", "https://instagram.com/", "instagram.com/"} {
		username = strings.TrimPrefix(username, prefix)
	}
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
