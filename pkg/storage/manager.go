package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"igharvest/pkg/models"
)

// TimestampLayout is used in every output file name.
const TimestampLayout = "20060102_150405"

const lockName = ".igharvest.lock"

// ErrLocked is returned when another run writes to the same directory.
var ErrLocked = errors.New("output directory is in use by another run")

// Manager writes export files into one output directory and remembers
// which accounts already have exports there.
type Manager struct {
	outputDir string
	exports   map[string][]string
	mu        sync.RWMutex
	lock      *flock.Flock
}

// NewManager creates the output directory if needed and indexes existing
// exports.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir: outputDir,
		exports:   make(map[string][]string),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

// scanExistingFiles picks up <user>_complete_<ts>.json files.
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if user, ok := exportOwner(entry.Name()); ok {
			m.exports[user] = append(m.exports[user], filepath.Join(m.outputDir, entry.Name()))
		}
	}
	for user := range m.exports {
		sort.Strings(m.exports[user])
	}
	return nil
}

func exportOwner(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	i := strings.LastIndex(name, "_complete_")
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}

// Lock takes an exclusive lock on the output directory for the duration of
// a run. Call Unlock when done.
func (m *Manager) Lock() error {
	m.lock = flock.New(filepath.Join(m.outputDir, lockName))
	locked, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock output directory: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

func (m *Manager) Unlock() error {
	if m.lock == nil {
		return nil
	}
	err := m.lock.Unlock()
	os.Remove(m.lock.Path())
	m.lock = nil
	return err
}

// SaveExport writes the complete JSON export of one account.
func (m *Manager) SaveExport(export models.Export, at time.Time) (string, error) {
	user := export.ProfileInfo.Username
	path := m.path(fmt.Sprintf("%s_complete_%s.json", user, at.Format(TimestampLayout)))

	err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(export)
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.exports[user] = append(m.exports[user], path)
	m.mu.Unlock()
	return path, nil
}

// SavePostsCSV writes one row per post.
func (m *Manager) SavePostsCSV(username string, posts []models.PostRecord, at time.Time) (string, error) {
	path := m.path(fmt.Sprintf("%s_posts_%s.csv", username, at.Format(TimestampLayout)))
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, p.CSVRow())
	}
	return path, writeCSV(path, models.PostCSVHeader, rows)
}

// SaveSummary writes the per-account summary of a multi-account run.
func (m *Manager) SaveSummary(results []models.AccountResult, at time.Time) (string, error) {
	path := m.path(fmt.Sprintf("FINAL_SUMMARY_%s.csv", at.Format(TimestampLayout)))
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.CSVRow())
	}
	return path, writeCSV(path, models.SummaryCSVHeader, rows)
}

// Exports lists existing export files for username, oldest first.
func (m *Manager) Exports(username string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.exports[username]...)
}

// HasExport reports whether username was exported into this directory before.
func (m *Manager) HasExport(username string) bool {
	return len(m.Exports(username)) > 0
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.outputDir, name)
}

func writeCSV(path string, header []string, rows [][]string) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// writeAtomic writes through a temp file and renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	err = write(out)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
