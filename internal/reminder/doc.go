// Package reminder turns weekly prayer time-tables into one-shot timer jobs
// and keeps each subscriber's job set consistent with their preferences.
//
// A subscriber's jobs are named by an encoded Identity. The name is the only
// record of a job's metadata: cancelling and querying work by scanning live
// timer names for the "{id}_" prefix.
package reminder
