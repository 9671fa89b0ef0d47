// Package patterns parses numeric rule conditions and matches stored
// rules against the caller's current situation.
package patterns
