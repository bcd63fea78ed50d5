// Package notifier delivers chat notifications asynchronously.
//
// A Notification carries a transport-neutral Message, a Target and a dedup
// Key. The Service queues it, sends it through a transport.Adapter under a
// token-bucket rate limit and retries failures with jittered exponential
// backoff (honouring rate-limit hints from the platform).
//
// # Ordering
//
// With the default single worker, notifications are sent in enqueue order,
// which keeps board activity chronological in the channel.
//
// # Dedup
//
// A key is recorded only after a successful send, in memory and (optionally)
// in storage. Re-enqueueing a delivered key inside the dedup window is a
// no-op, so replaying a batch after a crash does not double-post.
package notifier
