// Package notifier delivers events to subscribed Web Push endpoints.
//
// Dispatch is the single entrypoint used by every poller and checker, and is
// also exposed to the host as a reusable hook for ad hoc notifications.
//
// Delivery semantics
//
// Each subscription is attempted independently with bounded concurrency; one
// dead endpoint never suppresses delivery to the rest. A "gone" response
// (410/404) deletes the subscription and its preferences. Exactly one history
// row is appended per dispatched event, regardless of subscriber count or
// delivery outcome.
package notifier
