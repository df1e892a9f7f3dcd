package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	PairingOps          map[string]uint64 // keyed "op/status"
	EntitlementsGranted uint64
	EntitlementsRevoked uint64
	SagaCompensations   map[string]uint64 // keyed by status
	JobItems            map[string]uint64 // keyed "job/status"
	JobDurationCount    map[string]uint64
	JobDurationTotalNs  map[string]int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                  sync.Mutex
	pairingOps          map[string]uint64
	entitlementsGranted uint64
	entitlementsRevoked uint64
	sagaCompensations   map[string]uint64
	jobItems            map[string]uint64
	jobDurationCount    map[string]uint64
	jobDurationTotalNs  map[string]int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		pairingOps:         make(map[string]uint64),
		sagaCompensations:  make(map[string]uint64),
		jobItems:           make(map[string]uint64),
		jobDurationCount:   make(map[string]uint64),
		jobDurationTotalNs: make(map[string]int64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		PairingOps:          copyMap(m.pairingOps),
		EntitlementsGranted: m.entitlementsGranted,
		EntitlementsRevoked: m.entitlementsRevoked,
		SagaCompensations:   copyMap(m.sagaCompensations),
		JobItems:            copyMap(m.jobItems),
		JobDurationCount:    copyMap(m.jobDurationCount),
		JobDurationTotalNs:  copyMap(m.jobDurationTotalNs),
	}
}

// IncPairingOp increments the counter for one pairing operation outcome.
func (m *InMemoryRecorder) IncPairingOp(op, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairingOps[op+"/"+status]++
}

// IncEntitlementGranted increments the granted-entitlement counter.
func (m *InMemoryRecorder) IncEntitlementGranted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entitlementsGranted++
}

// IncEntitlementRevoked increments the revoked-entitlement counter.
func (m *InMemoryRecorder) IncEntitlementRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entitlementsRevoked++
}

// IncSagaCompensation increments the compensation counter for one outcome.
func (m *InMemoryRecorder) IncSagaCompensation(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sagaCompensations[status]++
}

// IncJobItem increments the per-item counter for one batch job outcome.
func (m *InMemoryRecorder) IncJobItem(job, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobItems[job+"/"+status]++
}

// ObserveJobDuration records one batch job run duration.
func (m *InMemoryRecorder) ObserveJobDuration(job string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobDurationCount[job]++
	m.jobDurationTotalNs[job] += duration.Nanoseconds()
}

func copyMap[K comparable, V uint64 | int64](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
