package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidproc/internal/services"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "id, kind, status, inputs_json, output_path, log_path, error_kind, error_message, samples_written, duration_ms, created_at, updated_at, finished_at"

// NewJob describes a run about to start.
type NewJob struct {
	Kind Kind
	// ID is generated when empty.
	ID         string
	Inputs     []string
	OutputPath string
	LogPath    string
}

// Create inserts a running job with a fresh identifier.
func (s *Store) Create(ctx context.Context, req NewJob) (*Job, error) {
	if strings.TrimSpace(string(req.Kind)) == "" {
		return nil, errors.New("job kind is required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, errors.New("job output path is required")
	}
	inputs := req.Inputs
	if inputs == nil {
		inputs = []string{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal inputs: %w", err)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := time.Now().UTC().Format(timeLayout)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, kind, status, inputs_json, output_path, log_path, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(req.Kind),
		string(StatusRunning),
		string(inputsJSON),
		req.OutputPath,
		nullableString(req.LogPath),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// Succeed finishes a running job with the provided summary.
func (s *Store) Succeed(ctx context.Context, id string, summary Summary) error {
	now := time.Now().UTC().Format(timeLayout)
	return s.finish(ctx, id,
		`UPDATE jobs SET status = ?, samples_written = ?, duration_ms = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusSucceeded), summary.SamplesWritten, summary.DurationMs, now, now,
		id, string(StatusRunning),
	)
}

// Fail finishes a running job with the failure kind and message of jobErr.
func (s *Store) Fail(ctx context.Context, id string, jobErr error) error {
	kind := services.FailureKind(jobErr)
	if kind == "" {
		kind = services.KindUnknown
	}
	message := "failed without error detail"
	if jobErr != nil {
		message = strings.TrimSpace(jobErr.Error())
	}
	now := time.Now().UTC().Format(timeLayout)
	return s.finish(ctx, id,
		`UPDATE jobs SET status = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusFailed), kind, message, now, now,
		id, string(StatusRunning),
	)
}

func (s *Store) finish(ctx context.Context, id, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish job %s: no running job with that id", id)
	}
	return nil
}

// Get fetches a job by identifier. A missing job returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByPrefix resolves a unique job from a leading fragment of its id.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Job, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, errors.New("job id is required")
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id LIKE ? ORDER BY created_at LIMIT 2`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	switch len(jobs) {
	case 0:
		return nil, nil
	case 1:
		return jobs[0], nil
	default:
		return nil, fmt.Errorf("job id %q is ambiguous", prefix)
	}
}

// List returns jobs newest first, filtered to statuses when any are given.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Clear removes finished jobs and returns how many rows were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status != ?`, string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning fails every job still marked running. It is called before new
// work starts so runs orphaned by a crashed process do not linger.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status = ?`,
		string(StatusFailed), services.KindCanceled, InterruptedReason, now, now, string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             string
		kind           string
		status         string
		inputsJSON     sql.NullString
		outputPath     string
		logPath        sql.NullString
		errorKind      sql.NullString
		errorMessage   sql.NullString
		samplesWritten sql.NullInt64
		durationMs     sql.NullInt64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		finishedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&kind,
		&status,
		&inputsJSON,
		&outputPath,
		&logPath,
		&errorKind,
		&errorMessage,
		&samplesWritten,
		&durationMs,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		Kind:           Kind(kind),
		Status:         Status(status),
		OutputPath:     outputPath,
		LogPath:        logPath.String,
		ErrorKind:      errorKind.String,
		ErrorMessage:   errorMessage.String,
		SamplesWritten: samplesWritten.Int64,
		DurationMs:     durationMs.Int64,
	}
	if inputsJSON.Valid && inputsJSON.String != "" {
		if err := json.Unmarshal([]byte(inputsJSON.String), &job.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs of job %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
