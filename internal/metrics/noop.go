package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncPairingOp is a no-op.
func (n *NoopRecorder) IncPairingOp(op, status string) {}

// IncEntitlementGranted is a no-op.
func (n *NoopRecorder) IncEntitlementGranted() {}

// IncEntitlementRevoked is a no-op.
func (n *NoopRecorder) IncEntitlementRevoked() {}

// IncSagaCompensation is a no-op.
func (n *NoopRecorder) IncSagaCompensation(status string) {}

// IncJobItem is a no-op.
func (n *NoopRecorder) IncJobItem(job, status string) {}

// ObserveJobDuration is a no-op.
func (n *NoopRecorder) ObserveJobDuration(job string, duration time.Duration) {}
