// Package jobstore records job runs in SQLite.
//
// Every job the workflow runner starts gets a row carrying its kind, inputs,
// output path and per-job log file. The row is finished exactly once with
// either a success summary or the failure kind and message derived from the
// job error. The ledger backs `vidproc jobs` and is treated as disposable
// history: schema changes bump schemaVersion and users clear the database.
package jobstore
