package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"igharvest/pkg/models"
)

var at = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func TestSaveExport(t *testing.T) {
	tempDir := t.TempDir()
	manager, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if manager.HasExport("natgeo") {
		t.Error("Expected no export in a fresh directory")
	}

	export := models.Export{
		ProfileInfo: models.ProfileRecord{Username: "natgeo", Followers: 10},
		Posts:       []models.PostRecord{{Username: "natgeo", Shortcode: "A1", Caption: "<b>&</b>"}},
		Summary:     models.ExportSummary{TotalPostsScraped: 1, ScrapingMethod: "session"},
	}
	path, err := manager.SaveExport(export, at)
	if err != nil {
		t.Fatalf("Failed to save export: %v", err)
	}

	if want := filepath.Join(tempDir, "natgeo_complete_20240601_093000.json"); path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temporary file to be gone")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	var decoded models.Export
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	if decoded.Posts[0].Caption != "<b>&</b>" {
		t.Errorf("Caption mangled: %q", decoded.Posts[0].Caption)
	}

	if !manager.HasExport("natgeo") {
		t.Error("Expected export to be recorded")
	}

	// a new manager finds the export on disk
	manager2, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create second manager: %v", err)
	}
	if got := manager2.Exports("natgeo"); len(got) != 1 || got[0] != path {
		t.Errorf("Expected scanned export %s, got %v", path, got)
	}
}

func TestSavePostsCSV(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	posts := []models.PostRecord{
		{Username: "natgeo", Shortcode: "A1", Caption: "line one\nline, two", Hashtags: []string{"a", "b"}},
		{Username: "natgeo", Shortcode: "B2"},
	}
	path, err := manager.SavePostsCSV("natgeo", posts, at)
	if err != nil {
		t.Fatalf("Failed to save CSV: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(models.PostCSVHeader) {
		t.Errorf("Expected %d columns, got %d", len(models.PostCSVHeader), len(rows[0]))
	}
	if rows[1][5] != "line one\nline, two" {
		t.Errorf("Caption not preserved: %q", rows[1][5])
	}
	if rows[1][11] != "a|b" {
		t.Errorf("Expected joined hashtags, got %q", rows[1][11])
	}
}

func TestSaveSummary(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	path, err := manager.SaveSummary([]models.AccountResult{
		{Username: "a", PostsScraped: 3, Status: models.StatusSuccess, Followers: 100},
		{Username: "b", Status: models.StatusSkipped},
	}, at)
	if err != nil {
		t.Fatalf("Failed to save summary: %v", err)
	}
	if filepath.Base(path) != "FINAL_SUMMARY_20240601_093000.csv" {
		t.Errorf("Unexpected summary name %s", path)
	}

	rows := readCSV(t, path)
	if rows[1][0] != "a" || rows[1][1] != "3" || rows[1][2] != "success" || rows[1][3] != "100" {
		t.Errorf("Unexpected first row %v", rows[1])
	}
	if rows[2][2] != "skipped" {
		t.Errorf("Unexpected second row %v", rows[2])
	}
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewManager(dir)
	second, _ := NewManager(dir)

	if err := first.Lock(); err != nil {
		t.Fatalf("Failed to take lock: %v", err)
	}
	if err := second.Lock(); err != ErrLocked {
		t.Errorf("Expected ErrLocked, got %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Errorf("Expected lock after release, got %v", err)
	}
	second.Unlock()
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	return rows
}
