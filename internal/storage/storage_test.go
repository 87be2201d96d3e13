package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLayoutEnsureProjectDirs(t *testing.T) {
	root := t.TempDir()
	l, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := uuid.New()
	if err := l.EnsureProjectDirs(id); err != nil {
		t.Fatalf("EnsureProjectDirs: %v", err)
	}
	for _, sub := range []string{"segments", "input_videos", "frames", "final"} {
		if _, err := os.Stat(filepath.Join(l.ProjectDir(id), sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}
}

func TestNormalizeVideoExt(t *testing.T) {
	cases := map[string]string{
		"clip.MP4":    ".mp4",
		"clip.mov":    ".mov",
		"clip.weird":  ".mp4",
		"clip":        ".mp4",
		"clip.webm":   ".webm",
	}
	for in, want := range cases {
		if got := NormalizeVideoExt(in); got != want {
			t.Errorf("NormalizeVideoExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProjectShortIDStable(t *testing.T) {
	id := uuid.New()
	a := ProjectShortID(id)
	b := ProjectShortID(id)
	if a != b {
		t.Fatalf("ProjectShortID not stable: %q vs %q", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("ProjectShortID length = %d, want 8", len(a))
	}
}

func TestFrameBasenameUsesOneBasedIndex(t *testing.T) {
	id := uuid.New()
	got := FrameBasename(id, 0)
	want := "p" + ProjectShortID(id) + "_001"
	if got != want {
		t.Fatalf("FrameBasename(0) = %q, want %q", got, want)
	}
}

func TestAtomicWriteTextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "full_script.txt")
	if err := AtomicWriteText(path, "hello world"); err != nil {
		t.Fatalf("AtomicWriteText: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", string(data))
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if e.Name() != "full_script.txt" {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestCleanStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".full_script.txt.tmp-123")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	CleanStaleTempFiles(dir)
	if Exists(stale) {
		t.Fatal("expected stale temp file to be removed")
	}
}
