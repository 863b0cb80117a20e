package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"igharvest/pkg/models"
)

func TestCheckpointManager(t *testing.T) {
	dir := t.TempDir()
	username := "testuser"

	t.Run("CreateAndLoad", func(t *testing.T) {
		mgr, err := NewManagerInDir(dir, username)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}

		cp, err := mgr.Create(username, "12345", "run-1")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}
		if cp.UserID != "12345" {
			t.Errorf("Expected user ID 12345, got %s", cp.UserID)
		}

		loaded, err := mgr.Load()
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if loaded == nil {
			t.Fatal("Expected checkpoint, got nil")
		}
		if loaded.Username != username || loaded.RunID != "run-1" {
			t.Errorf("Unexpected checkpoint %+v", loaded)
		}
	})

	t.Run("StartPage", func(t *testing.T) {
		mgr, _ := NewManagerInDir(dir, username)
		cp, err := mgr.Create(username, "12345", "run-1")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}

		if err := mgr.StartPage(cp, ""); err != nil {
			t.Fatalf("Failed to start page: %v", err)
		}
		if err := mgr.StartPage(cp, "cursor123"); err != nil {
			t.Fatalf("Failed to start page: %v", err)
		}

		loaded, err := mgr.Load()
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if loaded.Cursor != "cursor123" {
			t.Errorf("Expected cursor cursor123, got %s", loaded.Cursor)
		}
		if loaded.Pages != 2 {
			t.Errorf("Expected 2 pages, got %d", loaded.Pages)
		}
	})

	t.Run("RecordPost", func(t *testing.T) {
		mgr, _ := NewManagerInDir(dir, username)
		cp, err := mgr.Create(username, "12345", "run-1")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}

		for _, sc := range []string{"ABC123", "DEF456", "ABC123"} {
			if err := mgr.RecordPost(cp, models.PostRecord{Shortcode: sc}); err != nil {
				t.Fatalf("Failed to record post: %v", err)
			}
		}

		if !cp.Has("ABC123") || !cp.Has("DEF456") {
			t.Error("Expected both posts to be recorded")
		}
		if cp.Has("XYZ789") {
			t.Error("Expected XYZ789 to be absent")
		}
		if len(cp.Posts) != 2 {
			t.Errorf("Expected duplicates to be ignored, got %d posts", len(cp.Posts))
		}

		loaded, _ := mgr.Load()
		if loaded.Has("DEF456") {
			t.Error("Expected posts to stay unsaved until a flush")
		}
		if err := mgr.Flush(cp); err != nil {
			t.Fatalf("Failed to flush checkpoint: %v", err)
		}
		loaded, _ = mgr.Load()
		if !loaded.Has("DEF456") {
			t.Error("Expected loaded checkpoint to know DEF456")
		}
	})

	t.Run("SaveEvery", func(t *testing.T) {
		mgr, _ := NewManagerInDir(dir, username)
		mgr.SaveEvery = 3
		cp, err := mgr.Create(username, "12345", "run-1")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}

		for _, sc := range []string{"A", "B", "C", "D"} {
			if err := mgr.RecordPost(cp, models.PostRecord{Shortcode: sc}); err != nil {
				t.Fatalf("Failed to record post: %v", err)
			}
		}
		loaded, _ := mgr.Load()
		if len(loaded.Posts) != 3 {
			t.Errorf("Expected a save after 3 posts, got %d stored", len(loaded.Posts))
		}

		if err := mgr.StartPage(cp, "next"); err != nil {
			t.Fatalf("Failed to start page: %v", err)
		}
		loaded, _ = mgr.Load()
		if len(loaded.Posts) != 4 || loaded.Cursor != "next" {
			t.Errorf("Expected page boundary to store all 4 posts, got %d at %q", len(loaded.Posts), loaded.Cursor)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mgr, _ := NewManagerInDir(dir, username)
		if _, err := mgr.Create(username, "12345", "run-1"); err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}
		if !mgr.Exists() {
			t.Error("Expected checkpoint to exist")
		}
		if err := mgr.Delete(); err != nil {
			t.Fatalf("Failed to delete checkpoint: %v", err)
		}
		if mgr.Exists() {
			t.Error("Expected checkpoint to not exist after deletion")
		}
		if err := mgr.Delete(); err != nil {
			t.Errorf("Deleting twice should be fine, got %v", err)
		}
	})

	t.Run("OldFormatIgnored", func(t *testing.T) {
		mgr, _ := NewManagerInDir(dir, "legacy")
		if err := os.WriteFile(mgr.Path(), []byte(`{"username":"legacy","version":1}`), 0644); err != nil {
			t.Fatal(err)
		}
		cp, err := mgr.Load()
		if err != nil || cp != nil {
			t.Errorf("Expected old checkpoint to be ignored, got %v, %v", cp, err)
		}
	})
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("Failed to get data directory: %v", err)
	}
	if filepath.Base(dir) != "igharvest" {
		t.Errorf("Unexpected data directory %s", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Data directory not created: %v", err)
	}
}
