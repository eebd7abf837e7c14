// Package syncer is the fleet telemetry sync engine.
//
// The Engine runs the scheduled fetch, convert, upsert, aggregate cycle
// against the telemetry service, with a bounded retry budget, a reentrancy
// guard so ticks never overlap, and live/demo mode transitions that purge
// simulated records before live data commits. The Simulator provides the
// demo-mode feed through the same store path.
package syncer
