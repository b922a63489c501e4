// Package notifier delivers texts to subscribers through a transport adapter.
//
// Send is synchronous: callers (fired reminder jobs, the conversation
// router) already run on their own workers. The service adds a shared rate
// limit, a per-send timeout, duplicate suppression and a small history.
//
// Permanent failures keep transport.ErrRecipientUnreachable in their chain so
// callers can deactivate the subscriber.
package notifier
