// Package ffcodec implements the codec capability on top of ffmpeg
// processes. Input buffers are written to the process's stdin by a writer
// goroutine and its stdout is split into output units by a reader goroutine,
// so neither pipe can stall the caller's bounded-wait polling.
//
// Backpressure: an input slot is only granted while fewer than the
// configured number of output units are waiting to be dequeued.
package ffcodec
