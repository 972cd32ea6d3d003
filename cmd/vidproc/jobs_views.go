package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidproc/internal/jobstore"
)

const shortIDLength = 8

var titleCaser = cases.Title(language.Und)

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// label turns snake_case identifiers into "Title Case" words.
func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "unknown length"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

func formatElapsed(job *jobstore.Job) string {
	if !job.Finished() {
		return "running"
	}
	return job.Elapsed().Round(time.Millisecond).String()
}

func buildJobRows(jobs []*jobstore.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			label(string(job.Kind)),
			label(string(job.Status)),
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			formatElapsed(job),
			job.OutputPath,
		})
	}
	return rows
}

func buildStatusRows(stats map[jobstore.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range jobstore.AllStatuses() {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{label(string(status)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func renderJobDetail(job *jobstore.Job) string {
	rows := [][]string{
		{"ID", job.ID},
		{"Kind", label(string(job.Kind))},
		{"Status", label(string(job.Status))},
		{"Output", job.OutputPath},
	}
	for i, input := range job.Inputs {
		rows = append(rows, []string{fmt.Sprintf("Input %d", i+1), input})
	}
	rows = append(rows, []string{"Created", job.CreatedAt.Local().Format(time.RFC3339)})
	if job.FinishedAt != nil {
		rows = append(rows,
			[]string{"Finished", job.FinishedAt.Local().Format(time.RFC3339)},
			[]string{"Elapsed", formatElapsed(job)},
		)
	}
	if job.Status == jobstore.StatusSucceeded {
		rows = append(rows,
			[]string{"Samples", fmt.Sprintf("%d", job.SamplesWritten)},
			[]string{"Duration", formatMillis(job.DurationMs)},
		)
	}
	if job.ErrorKind != "" {
		rows = append(rows, []string{"Error Kind", label(job.ErrorKind)})
	}
	if job.ErrorMessage != "" {
		rows = append(rows, []string{"Error", job.ErrorMessage})
	}
	if job.LogPath != "" {
		rows = append(rows, []string{"Log", job.LogPath})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil) + "\n"
}
