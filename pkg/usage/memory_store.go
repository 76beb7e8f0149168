package usage

import (
	"sort"
	"sync"
)

// MemoryStore keeps usage records in-process. Used in tests and in
// deployments without a database, where usage reporting is best-effort
// anyway.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore initializes an empty in-memory recorder.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores one record in insertion order.
func (m *MemoryStore) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Last returns the most recently appended record.
func (m *MemoryStore) Last() (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return Record{}, false, nil
	}
	return m.records[len(m.records)-1], true, nil
}

// Totals sums tokens grouped by provider and model, ordered for stable
// output.
func (m *MemoryStore) Totals() ([]Total, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sums := make(map[[2]string]int64)
	for _, rec := range m.records {
		sums[[2]string{rec.Provider, rec.Model}] += int64(rec.Tokens)
	}
	totals := make([]Total, 0, len(sums))
	for key, tokens := range sums {
		totals = append(totals, Total{Provider: key[0], Model: key[1], Tokens: tokens})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Provider != totals[j].Provider {
			return totals[i].Provider < totals[j].Provider
		}
		return totals[i].Model < totals[j].Model
	})
	return totals, nil
}

// Records returns a copy of all appended records.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
