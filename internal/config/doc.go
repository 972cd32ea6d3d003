// Package config loads, normalizes, and validates vidproc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts) and reads TOML files. The Config type centralizes every knob the
// CLI and the pipeline need: directories, ffmpeg binaries, codec polling and
// buffering, audio fades and the time-lapse encoder settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
