// Package logx wraps zerolog behind a small structured-logging API that can
// swap its sinks at runtime.
//
// Sinks:
//   - console (pretty, human-readable)
//   - file (append-only JSON lines)
//   - telegram (rate-limited error feed to an operator chat)
package logx
