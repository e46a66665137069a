package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager_Defaults(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	if m.key != defaultKey {
		t.Errorf("key = %q, want %q", m.key, defaultKey)
	}
	if m.tempDir != os.TempDir() {
		t.Errorf("tempDir = %q, want %q", m.tempDir, os.TempDir())
	}
}

func TestRestore_SkipsWhenLocalDatabaseExists(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "bot.db")
	if err := os.WriteFile(dbPath, []byte("existing"), 0o644); err != nil {
		t.Fatalf("Failed to write local database: %v", err)
	}

	// The client is never reached when a local database exists.
	m := NewManager(ManagerConfig{})
	if err := m.Restore(context.Background(), dbPath); err != nil {
		t.Errorf("Restore() error = %v, want nil skip", err)
	}

	data, err := os.ReadFile(dbPath)
	if err != nil || string(data) != "existing" {
		t.Errorf("local database was touched: %q, %v", data, err)
	}
}
