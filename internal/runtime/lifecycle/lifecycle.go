// Package lifecycle holds small process-lifetime primitives shared by the app.
package lifecycle

import "sync/atomic"

// StopReason describes why the app (or a component) is shutting down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// InitGate is a process-wide one-shot switch with a single allowed transition
// (uninitialized -> initialized). It never resets within a process lifetime.
//
// Construct one at process start and hand it to the component that must run
// exactly once (e.g. startup recovery).
type InitGate struct {
	done atomic.Bool
}

// TryInit performs the transition. It returns true exactly once; every later
// call returns false.
func (g *InitGate) TryInit() bool {
	return g.done.CompareAndSwap(false, true)
}

// Initialized reports whether the transition already happened.
func (g *InitGate) Initialized() bool { return g.done.Load() }
