package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatic(t *testing.T) {
	if !(Static{KeepWarm: true}).KeepWarmEnabled() {
		t.Error("Static{true}.KeepWarmEnabled() = false")
	}
	if (Static{KeepWarm: false}).KeepWarmEnabled() {
		t.Error("Static{false}.KeepWarmEnabled() = true")
	}
}

func TestFileStore_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(filepath.Join(dir, "settings.yaml"), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	if !s.KeepWarmEnabled() {
		t.Error("default keep_warm should be true")
	}
}

func TestFileStore_LoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("keep_warm: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	if s.KeepWarmEnabled() {
		t.Error("keep_warm should be false from file")
	}
}

func TestFileStore_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("keep_warm: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("keep_warm: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.KeepWarmEnabled() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("policy file change was not picked up")
}

func TestFileStore_BadYAMLKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("keep_warm: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the watcher a moment; the last good settings must survive.
	time.Sleep(100 * time.Millisecond)
	if s.KeepWarmEnabled() {
		t.Error("bad yaml overwrote last good settings")
	}
}
