// Package workflow implements the job entry points: audio conversion,
// time-lapse encoding, audio/video remux and the composition of all three.
//
// A Pipeline wires sources, codecs from a codec.Registry, the codec pump or
// frame renderer, and an fMP4 muxer for one job at a time. Every job writes
// to a partial file that is published onto the output path only on success;
// a failed job leaves no output behind. Concurrent jobs must not target the
// same output path, which is enforced with a lock file next to the output.
//
// The Runner executes jobs asynchronously, records each run in the job
// ledger, writes a per-job log file and delivers exactly one Result per job
// through its callback.
package workflow
