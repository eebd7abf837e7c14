// Package history archives each sync tick's batch to SQLite. Disabled
// unless a path is configured.
package history
