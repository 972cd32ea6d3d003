package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPartialPath(t *testing.T) {
	if got := PartialPath("/out/video.mp4"); got != "/out/video.mp4.partial" {
		t.Fatalf("PartialPath = %q", got)
	}
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.m4a")
	partial := PartialPath(final)
	if err := os.WriteFile(partial, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Publish(partial, final); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "audio" {
		t.Fatalf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(partial); !os.IsNotExist(err) {
		t.Fatalf("expected partial to be gone, stat err = %v", err)
	}
}

func TestPublishMissingPartial(t *testing.T) {
	dir := t.TempDir()
	if err := Publish(filepath.Join(dir, "nope.partial"), filepath.Join(dir, "nope")); err == nil {
		t.Fatal("expected error for missing partial")
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("second remove should succeed, got %v", err)
	}
	if err := RemoveIfExists(""); err != nil {
		t.Fatalf("empty path should be ignored, got %v", err)
	}
}

func TestEnsureParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "out.mp4")
	if err := EnsureParentDir(target); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Dir(target))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected parent directory, got %v", err)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "nonexistent"), filepath.Join(dir, "dst.bin")); err == nil {
		t.Fatal("expected error for missing source")
	}
}
