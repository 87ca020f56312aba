// Package logging builds the process-wide structured logger from
// configuration. All components receive a *slog.Logger and attach a
// "component" attribute; nothing else writes to standard output.
package logging
