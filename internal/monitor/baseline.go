// Package monitor implements per-session metrics collection, baseline
// tracking, and anomaly classification.
package monitor

import (
	"sync"
)

// BaselineStore tracks an exponential moving average per (session, metric).
//
// The EMA is seeded with the first observed sample, so the very first
// comparison window can be noisy on bursty start-up; the alpha and the
// alert ratio are both configuration for exactly that reason.
type BaselineStore struct {
	mu     sync.Mutex
	alpha  float64
	values map[baselineKey]float64
}

type baselineKey struct {
	sessionID string
	metric    string
}

// NewBaselineStore creates a store with the given EMA alpha.
func NewBaselineStore(alpha float64) *BaselineStore {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &BaselineStore{
		alpha:  alpha,
		values: make(map[baselineKey]float64),
	}
}

// Update folds a sample into the baseline and returns the updated value.
// The first sample for a key seeds the baseline as-is. Updating with the
// same sample twice moves the EMA toward that sample both times, which is
// the idempotence the callers rely on: re-observing a steady state never
// drifts the baseline away from it.
func (b *BaselineStore) Update(sessionID, metric string, sample float64) float64 {
	key := baselineKey{sessionID, metric}
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.values[key]
	if !ok {
		b.values[key] = sample
		return sample
	}
	updated := b.alpha*sample + (1-b.alpha)*current
	b.values[key] = updated
	return updated
}

// Get returns the current baseline, if one exists.
func (b *BaselineStore) Get(sessionID, metric string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[baselineKey{sessionID, metric}]
	return v, ok
}

// Drop removes all baselines for a session.
func (b *BaselineStore) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.values {
		if key.sessionID == sessionID {
			delete(b.values, key)
		}
	}
}
