package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Domain is matched as a substring against cookie domains.
const Domain = "instagram.com"

// RequiredCookies must all be present for a usable session.
var RequiredCookies = []string{"sessionid", "ds_user_id", "csrftoken"}

// Cookie is one browser cookie as exported by the login step.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// MissingCookiesError lists required cookies absent from a cookie set.
type MissingCookiesError struct {
	Missing []string
}

func (e *MissingCookiesError) Error() string {
	return fmt.Sprintf("missing required cookies: %s", strings.Join(e.Missing, ", "))
}

// LoadCookies reads a JSON array of cookies.
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}
	return cookies, nil
}

// SaveCookies writes cookies as an indented JSON array under a file lock.
func SaveCookies(path string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return writeLocked(path, data)
}

// Filter keeps the cookies set for Domain and returns them by name. When a
// name occurs twice the later cookie wins.
func Filter(cookies []Cookie) map[string]string {
	out := make(map[string]string)
	for _, c := range cookies {
		if strings.Contains(c.Domain, Domain) {
			out[c.Name] = c.Value
		}
	}
	return out
}

// Require checks that every required cookie is present and non-empty.
func Require(values map[string]string) error {
	var missing []string
	for _, name := range RequiredCookies {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingCookiesError{Missing: missing}
	}
	return nil
}

// ToHTTP converts named values into http cookies scoped to Domain.
func ToHTTP(values map[string]string) []*http.Cookie {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{
			Name:   name,
			Value:  values[name],
			Domain: "." + Domain,
			Path:   "/",
			Secure: true,
		})
	}
	return out
}

// Expired reports whether the cookie carries an expiry in the past. Session
// cookies (expires <= 0) never expire here.
func (c Cookie) Expired(now time.Time) bool {
	if c.Expires <= 0 {
		return false
	}
	return now.After(time.Unix(int64(c.Expires), 0))
}
