// Package storage provides the durable key/value repository behind the
// reminder engine.
//
// Semantics:
//   - Set with a TTL expires the record past that deadline (one-shot
//     reminders); TTL <= 0 means the record never auto-expires (recurring).
//   - Scan is a cursor-based, restartable prefix walk; pages are consistent
//     only in the absence of concurrent writes.
package storage
