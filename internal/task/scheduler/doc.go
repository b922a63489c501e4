// Package scheduler is the timer runtime: it owns named one-shot timers and
// cron/interval triggers, and hands every firing to the task engine.
//
// The scheduler never runs jobs itself. A firing timer only enqueues an
// engine.Task, so callers of SubmitOnce never block on job execution.
package scheduler
