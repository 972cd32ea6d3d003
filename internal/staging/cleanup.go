// Package staging lists and removes the intermediate files jobs leave in the
// staging directory: compose intermediates named tmp-<job id>.* and ingest
// transcodes named ingest-*.wav. Other entries are never touched.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vidproc/internal/logging"
)

const (
	composePrefix = "tmp-"
	ingestPrefix  = "ingest-"
)

// Entry describes one staging file.
type Entry struct {
	Name    string
	Path    string
	JobID   string
	ModTime time.Time
	Size    int64
}

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// JobID returns the job that owns a compose intermediate, or "" for any other
// file name.
func JobID(name string) string {
	rest, ok := strings.CutPrefix(name, composePrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, ".")
	return id
}

func managed(name string) bool {
	return strings.HasPrefix(name, composePrefix) || strings.HasPrefix(name, ingestPrefix)
}

// List returns the managed files in stagingDir, oldest first. A missing
// directory yields no entries.
func List(stagingDir string) ([]Entry, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !managed(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(stagingDir, de.Name()),
			JobID:   JobID(de.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) })
	return entries, nil
}

// CleanStale removes managed files older than maxAge.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, stagingDir, logger, "stale", func(e Entry) bool {
		return e.ModTime.Before(cutoff)
	})
}

// CleanOrphaned removes compose intermediates whose job is not in active.
// Ingest files carry no job id and are left to CleanStale.
func CleanOrphaned(ctx context.Context, stagingDir string, active map[string]struct{}, logger *slog.Logger) CleanResult {
	return clean(ctx, stagingDir, logger, "orphaned", func(e Entry) bool {
		if e.JobID == "" {
			return false
		}
		_, ok := active[e.JobID]
		return !ok
	})
}

func clean(ctx context.Context, stagingDir string, logger *slog.Logger, reason string, remove func(Entry) bool) CleanResult {
	var result CleanResult
	if logger == nil {
		logger = logging.NewNop()
	}
	entries, err := List(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !remove(entry) {
			continue
		}
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: entry.Path, Error: err})
			logger.Warn("failed to remove staging file",
				logging.String("path", entry.Path),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
			)
			continue
		}
		result.Removed = append(result.Removed, entry.Path)
		logger.Info("removed staging file",
			logging.String("path", entry.Path),
			logging.String("reason", reason),
			logging.Duration("age", time.Since(entry.ModTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
