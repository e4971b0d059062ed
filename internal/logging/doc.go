// Package logging configures structured slog output for the daemon and CLI.
//
// Two formats are supported: a compact console format for interactive use and
// JSON for log collection. Attr helpers and shared field-name constants keep
// log keys consistent across components.
package logging
