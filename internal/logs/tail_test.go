package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"vidproc/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !slices.Equal(lines, []string{"b", "c"}) {
		t.Fatalf("unexpected lines %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestLastShortFile(t *testing.T) {
	path := writeLog(t, "only\n")
	lines, _, err := logs.Last(path, 10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !slices.Equal(lines, []string{"only"}) {
		t.Fatalf("unexpected lines %#v", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestLastRejectsDirectory(t *testing.T) {
	if _, _, err := logs.Last(t.TempDir(), 1); err == nil {
		t.Fatal("expected directory error")
	}
}

func TestFollowStopsWhenDone(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	var finished atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			t.Errorf("open: %v", err)
			return
		}
		_, _ = f.WriteString("later\npart")
		_ = f.Close()
		finished.Store(true)
	}()

	var got []string
	_, err = logs.Follow(context.Background(), path, logs.FollowOptions{
		Offset: offset,
		Poll:   5 * time.Millisecond,
		Done:   finished.Load,
	}, func(line string) { got = append(got, line) })
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if !slices.Equal(got, []string{"later"}) {
		t.Fatalf("unexpected lines %#v", got)
	}
}

func TestFollowHonorsContext(t *testing.T) {
	path := writeLog(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := logs.Follow(ctx, path, logs.FollowOptions{Poll: 5 * time.Millisecond}, func(string) {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
