// Package notifier delivers formatted notifications through registered
// providers.
//
// Requests are queued and handled by a worker pool with a shared token-bucket
// rate limit, retried with jittered exponential backoff, and suppressed when
// an identical notification was sent within the dedup window. Errors marked
// with transport.ErrPermanent are not retried.
//
// # Events
//
// Every lifecycle step is published on the event bus as an Event under the
// "notifier." prefix (queued, sent, failed, deduped, dropped). The app turns
// these into persisted delivery records.
//
// # History
//
// The service keeps a small in-memory ring of recent outcomes for /api/history
// when no store is configured.
package notifier
