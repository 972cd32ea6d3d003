package jobstore

import (
	"strings"
	"time"
)

// Kind names the job entry point that produced a run.
type Kind string

const (
	KindConvertAudio Kind = "convert_audio"
	KindTimeLapse    Kind = "time_lapse"
	KindMux          Kind = "mux"
	KindCompose      Kind = "compose"
)

// Status represents the lifecycle of a job run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// InterruptedReason is the error message set on runs left running by a
// process that exited before finishing them.
const InterruptedReason = "process exited before job finished"

var allStatuses = []Status{StatusRunning, StatusSucceeded, StatusFailed}

// ParseStatus converts a user-provided status string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Job is one ledger row.
type Job struct {
	ID             string
	Kind           Kind
	Status         Status
	Inputs         []string
	OutputPath     string
	LogPath        string
	ErrorKind      string
	ErrorMessage   string
	SamplesWritten int64
	DurationMs     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
}

// Finished reports whether the run reached a terminal status.
func (j *Job) Finished() bool {
	return j != nil && j.Status != StatusRunning
}

// Elapsed is the wall time between creation and completion, or zero for a
// running job.
func (j *Job) Elapsed() time.Duration {
	if j == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// Summary carries the success details recorded when a job finishes.
type Summary struct {
	SamplesWritten int64
	DurationMs     int64
}
