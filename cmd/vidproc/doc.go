// Package main hosts the vidproc CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the workflow entry
// points (convert, timelapse, mux, compose), the job ledger (jobs), the
// environment check (doctor) and configuration scaffolding (config). It owns
// configuration resolution and logger setup so subcommands only assemble a
// workflow.Job and render its outcome.
package main
