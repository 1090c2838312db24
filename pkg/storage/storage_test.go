package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveWritesOnce(t *testing.T) {
	d, err := NewDir(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	path, err := d.Save("1700000000rakuten-card.csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Errorf("unexpected content %q", got)
	}

	_, err = d.Save("1700000000rakuten-card.csv", []byte("other"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "a,b\n1,2\n" {
		t.Errorf("existing file was overwritten: %q", got)
	}

	files, err := d.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected only the saved file, got %v", files)
	}
}

func TestSaveRejectsPaths(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"../escape.csv", "sub/file.csv", ".."} {
		if _, err := d.Save(name, nil); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"2.csv", "1.CSV", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := d.List(".csv")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{filepath.Join(dir, "1.CSV"), filepath.Join(dir, "2.csv")}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], files[i])
		}
	}
}
