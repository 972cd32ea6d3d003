// Package media defines the value types shared by every stage of the
// transcoding pipeline: track formats, sample buffer descriptors and the
// buffer flags exchanged between sources, codecs and muxers.
//
// Formats are plain values. A Format read from a source is never mutated in
// place; encoder configurations are derived by copying and overriding fields.
package media
