// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Pairing state machine metrics
	IncPairingOp(op, status string) // status: "success" or "error"

	// Entitlement propagation metrics
	IncEntitlementGranted()
	IncEntitlementRevoked()
	IncSagaCompensation(status string) // status: "reverted" or "failed"

	// Batch reconciliation metrics
	IncJobItem(job, status string) // status: "success" or "failed"
	ObserveJobDuration(job string, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
