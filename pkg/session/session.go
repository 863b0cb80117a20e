package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the artifact lock.
var ErrLocked = errors.New("session file is locked by another process")

// Session is the reusable authenticated session produced by the convert
// step and consumed by the scrape step.
type Session struct {
	Username  string            `json:"username"`
	UserID    string            `json:"user_id"`
	Cookies   map[string]string `json:"cookies"`
	CreatedAt time.Time         `json:"created_at"`
}

// New builds a Session from filtered cookie values.
func New(username string, cookies map[string]string) (*Session, error) {
	if err := Require(cookies); err != nil {
		return nil, err
	}
	return &Session{
		Username:  username,
		UserID:    cookies["ds_user_id"],
		Cookies:   cookies,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Session) CSRFToken() string { return s.Cookies["csrftoken"] }
func (s *Session) SessionID() string { return s.Cookies["sessionid"] }

// Load reads and validates a session file.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if err := Require(s.Cookies); err != nil {
		return nil, fmt.Errorf("session file %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the session with owner-only permissions.
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return writeLocked(path, data)
}

// writeLocked writes data atomically while holding <path>.lock.
func writeLocked(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return ErrLocked
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(path + ".lock")
	}()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
