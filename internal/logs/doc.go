// Package logs reads per-job log files for the CLI.
//
// Last returns the final lines of a file together with the byte offset that
// follows them, and Follow streams lines appended after an offset until the
// caller's context ends or its stop condition reports the job is finished.
// Both keep memory bounded by the requested line count.
package logs
