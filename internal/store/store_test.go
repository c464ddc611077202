package store

import (
	"os"
	"path/filepath"
	"testing"

	"phantomvault/internal/errs"
)

type sampleRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteAtomicAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records", "one.json")

	want := sampleRecord{Name: "profile-a", Count: 7}
	if err := WriteAtomic(path, want); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}

	var got sampleRecord
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v; want %+v", got, want)
	}
}

func TestWriteAtomicLeavesNoIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := WriteAtomic(path, sampleRecord{Name: "x"}); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if Exists(path + ".incomplete") {
		t.Error("temp file should not survive a successful write")
	}
}

func TestWriteAtomicOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := WriteAtomic(path, sampleRecord{Name: "first", Count: 1}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteAtomic(path, sampleRecord{Name: "second", Count: 2}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	var got sampleRecord
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Name != "second" || got.Count != 2 {
		t.Errorf("got %+v; want second write to win", got)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	var got sampleRecord
	err := ReadJSON(path, &got)
	if !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReadJSONCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), FilePermissions); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	var got sampleRecord
	err := ReadJSON(path, &got)
	if err == nil {
		t.Error("ReadJSON should reject malformed JSON")
	}
	var schemaErr *errs.SchemaError
	if !errs.As(err, &schemaErr) {
		t.Errorf("expected *errs.SchemaError, got %T", err)
	}
}

func TestFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := WriteAtomic(path, sampleRecord{Name: "x"}); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != FilePermissions {
		t.Errorf("permissions = %v; want %v", info.Mode().Perm(), os.FileMode(FilePermissions))
	}
}

func TestExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if Exists(path) {
		t.Error("Exists should be false before write")
	}
	if err := WriteAtomic(path, sampleRecord{Name: "x"}); err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	if !Exists(path) {
		t.Error("Exists should be true after write")
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if Exists(path) {
		t.Error("Exists should be false after remove")
	}
	if err := Remove(path); err != nil {
		t.Errorf("Remove of missing file should not error, got %v", err)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAtomic(filepath.Join(dir, "a.json"), sampleRecord{Name: "a"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := WriteAtomic(filepath.Join(dir, "b.json"), sampleRecord{Name: "b"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), DirPermissions); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	names, err := ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("got %d entries, want 2 (subdirectories excluded): %v", len(names), names)
	}
}

func TestListDirMissingDir(t *testing.T) {
	names, err := ListDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListDir on a missing directory should not error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no entries, got %v", names)
	}
}
