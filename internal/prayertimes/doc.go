// Package prayertimes fetches weekly prayer time-tables from muslimsalat.com.
//
// Successful snapshots are cached per location (24h, 100 entries by default).
// Network failures are retried a bounded number of times; provider rejections
// surface as *QueryError and are never retried or cached.
package prayertimes
