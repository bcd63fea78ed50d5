// Package storage persists the bot's small amount of state.
//
// It holds:
//   - per-board checkpoints (the last published action id)
//   - notifier dedup state, so a restart does not double-post
//
// Backends: file (JSON snapshot + journal), sqlite and redis.
package storage
