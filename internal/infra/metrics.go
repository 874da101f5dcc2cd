package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	machinesConsidered atomic.Uint64
	snapshotsWritten   atomic.Uint64
	machinesSkipped    atomic.Uint64
	estimatorFetches   atomic.Uint64
	cacheHits          atomic.Uint64
	cacheNegatives     atomic.Uint64
	providerFailures   atomic.Uint64

	// Latency tracking for external fetches
	fetchLatencySumNs atomic.Int64
	fetchLatencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordMachine records a machine entering the per-machine loop.
func (m *Metrics) RecordMachine() {
	m.machinesConsidered.Add(1)
}

// RecordSnapshot records one persisted snapshot row.
func (m *Metrics) RecordSnapshot() {
	m.snapshotsWritten.Add(1)
}

// RecordSkip records a machine skipped by parse failure or estimate miss.
func (m *Metrics) RecordSkip() {
	m.machinesSkipped.Add(1)
}

// RecordFetch records one outbound estimator call with its latency.
func (m *Metrics) RecordFetch(latencyNs int64) {
	m.estimatorFetches.Add(1)
	m.fetchLatencySumNs.Add(latencyNs)
	m.fetchLatencyCount.Add(1)
}

// RecordCacheHit records an estimate served from the in-memory cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheNegative records a confirmed-no-data cache entry.
func (m *Metrics) RecordCacheNegative() {
	m.cacheNegatives.Add(1)
}

// RecordProviderFailure records a failed call to any external provider.
func (m *Metrics) RecordProviderFailure() {
	m.providerFailures.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	MachinesConsidered uint64    `json:"machines_considered"`
	SnapshotsWritten   uint64    `json:"snapshots_written"`
	MachinesSkipped    uint64    `json:"machines_skipped"`
	EstimatorFetches   uint64    `json:"estimator_fetches"`
	CacheHits          uint64    `json:"cache_hits"`
	CacheNegatives     uint64    `json:"cache_negatives"`
	ProviderFailures   uint64    `json:"provider_failures"`
	AvgFetchLatencyNs  int64     `json:"avg_fetch_latency_ns"`
	Timestamp          time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.fetchLatencyCount.Load()
	if count > 0 {
		avgLatency = m.fetchLatencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		MachinesConsidered: m.machinesConsidered.Load(),
		SnapshotsWritten:   m.snapshotsWritten.Load(),
		MachinesSkipped:    m.machinesSkipped.Load(),
		EstimatorFetches:   m.estimatorFetches.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheNegatives:     m.cacheNegatives.Load(),
		ProviderFailures:   m.providerFailures.Load(),
		AvgFetchLatencyNs:  avgLatency,
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.machinesConsidered.Store(0)
	m.snapshotsWritten.Store(0)
	m.machinesSkipped.Store(0)
	m.estimatorFetches.Store(0)
	m.cacheHits.Store(0)
	m.cacheNegatives.Store(0)
	m.providerFailures.Store(0)
	m.fetchLatencySumNs.Store(0)
	m.fetchLatencyCount.Store(0)
}
