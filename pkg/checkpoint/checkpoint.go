package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"igharvest/pkg/logger"
	"igharvest/pkg/models"
)

// Version of the on-disk format.
const Version = 2

// DefaultSaveEvery is how many recorded posts may stay unsaved between page
// boundaries.
const DefaultSaveEvery = 25

// Checkpoint is the resumable state of one account's scrape.
type Checkpoint struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	// Cursor fetches the timeline page that was being processed.
	Cursor    string              `json:"cursor"`
	Pages     int                 `json:"pages"`
	Posts     []models.PostRecord `json:"posts"`
	RunID     string              `json:"run_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int                 `json:"version"`

	seen    map[string]bool
	unsaved int
}

// Has reports whether a post was already recorded.
func (c *Checkpoint) Has(shortcode string) bool {
	if c.seen == nil {
		c.seen = make(map[string]bool, len(c.Posts))
		for _, p := range c.Posts {
			c.seen[p.Shortcode] = true
		}
	}
	return c.seen[shortcode]
}

// Manager handles checkpoint operations for one account
type Manager struct {
	checkpointPath string
	logger         logger.Logger
	// SaveEvery flushes RecordPost after this many posts; 0 waits for the
	// next page or an explicit Flush.
	SaveEvery int
}

// NewManager creates a manager storing under the user data directory.
func NewManager(username string) (*Manager, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), username)
}

// NewManagerInDir creates a manager storing under dir.
func NewManagerInDir(dir, username string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", username)),
		logger:         logger.GetLogger().WithField("username", username),
		SaveEvery:      DefaultSaveEvery,
	}, nil
}

// Path is where the checkpoint lives.
func (m *Manager) Path() string { return m.checkpointPath }

// Create starts and saves an empty checkpoint.
func (m *Manager) Create(username, userID, runID string) (*Checkpoint, error) {
	now := time.Now().UTC()
	cp := &Checkpoint{
		Username:  username,
		UserID:    userID,
		RunID:     runID,
		CreatedAt: now,
		Version:   Version,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.logger.DebugWithFields("checkpoint created", map[string]interface{}{
		"path": m.checkpointPath,
	})
	return cp, nil
}

// Load returns the stored checkpoint, or nil when there is none.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != Version {
		m.logger.WarnWithFields("ignoring checkpoint with old format", map[string]interface{}{
			"version": cp.Version,
		})
		return nil, nil
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"posts":      len(cp.Posts),
		"cursor":     cp.Cursor,
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	cp.unsaved = 0
	return nil
}

// Flush saves posts recorded since the last save, if any.
func (m *Manager) Flush(cp *Checkpoint) error {
	if cp.unsaved == 0 {
		return nil
	}
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// StartPage records that the page fetched with cursor is now being processed
// and saves, together with any posts recorded on the previous page.
func (m *Manager) StartPage(cp *Checkpoint, cursor string) error {
	cp.Cursor = cursor
	cp.Pages++
	return m.Save(cp)
}

// RecordPost appends a scraped post. It is written on the next page
// boundary, every SaveEvery posts, or by Flush.
func (m *Manager) RecordPost(cp *Checkpoint, rec models.PostRecord) error {
	if cp.Has(rec.Shortcode) {
		return nil
	}
	cp.Posts = append(cp.Posts, rec)
	cp.seen[rec.Shortcode] = true
	cp.unsaved++
	if m.SaveEvery > 0 && cp.unsaved >= m.SaveEvery {
		return m.Save(cp)
	}
	return nil
}

// DataDir returns the per-OS data directory, creating it if needed.
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igharvest")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igharvest")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igharvest")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
