// Package storage persists subscriber preferences.
//
// Two drivers are available: "sqlite" (default, pure Go via modernc.org/sqlite)
// and "badger" (embedded key-value store). Job state is never stored; the live
// reminder set is re-derived from preferences after a restart.
package storage
