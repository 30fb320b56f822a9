// Package remind is the reminder engine: record model, live-timer
// scheduler, startup recovery, the pending two-step creation state, and
// the orchestrating service.
//
// Ordering contracts, in order of how much they matter:
//
//   - create: persist the record, then arm the timer. A crash in between
//     leaves a durable record that recovery re-arms.
//   - recurring fire: deliver, then write back the advanced next-fire
//     time. A crash in between redelivers the same occurrence after
//     restart.
//   - cancel: disarm the timer, then delete the record. A crash in
//     between leaves a stale record that recovery re-arms; cancellation
//     is best effort across crashes.
package remind
