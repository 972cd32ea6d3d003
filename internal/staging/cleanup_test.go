package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidproc/internal/logging"
)

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestJobID(t *testing.T) {
	cases := map[string]string{
		"tmp-abc.mp4":         "abc",
		"tmp-abc.m4a.partial": "abc",
		"ingest-123.wav":      "",
		"notes.txt":           "",
	}
	for name, want := range cases {
		if got := JobID(name); got != want {
			t.Errorf("JobID(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOnlyOldManagedFiles(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, "ingest-old.wav", 2*time.Hour)
	recent := touch(t, dir, "tmp-job.mp4", time.Minute)
	foreign := touch(t, dir, "keep.mp4", 3*time.Hour)

	result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("expected only %s removed, got %v", old, result.Removed)
	}
	for _, path := range []string{recent, foreign} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should still exist: %v", path, err)
		}
	}
}

func TestCleanOrphanedKeepsActiveJobs(t *testing.T) {
	dir := t.TempDir()
	active := touch(t, dir, "tmp-live.mp4", 0)
	orphan := touch(t, dir, "tmp-dead.m4a", 0)
	ingest := touch(t, dir, "ingest-x.wav", 0)

	result := CleanOrphaned(context.Background(), dir, map[string]struct{}{"live": {}}, nil)
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("expected only %s removed, got %v", orphan, result.Removed)
	}
	for _, path := range []string{active, ingest} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should still exist: %v", path, err)
		}
	}
}

func TestListOrdersByAge(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "tmp-b.mp4", time.Minute)
	touch(t, dir, "tmp-a.mp4", time.Hour)
	if err := os.Mkdir(filepath.Join(dir, "tmp-dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "tmp-a.mp4" || entries[0].JobID != "a" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
