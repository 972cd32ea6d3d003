// Package preflight checks the directories and external binaries vidproc
// needs before a job starts.
//
// The workflow runner calls RunAll before every job and refuses to start when
// a check fails; `vidproc doctor` prints the same results.
package preflight
