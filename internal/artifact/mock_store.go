package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	payloads map[string][]byte

	// PutErr, when set, is returned by every Put call.
	PutErr error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		records:  make(map[string]*Record),
		payloads: make(map[string][]byte),
	}
}

func (m *MockStore) Put(ctx context.Context, name, runID string, payload []byte) (*Record, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h := sha256.Sum256(payload)
	record := &Record{
		Name:      name,
		SHA256:    hex.EncodeToString(h[:]),
		Size:      int64(len(payload)),
		RunID:     runID,
		CreatedAt: time.Now(),
	}
	m.records[name] = record
	m.payloads[name] = append([]byte{}, payload...)
	return record, nil
}

func (m *MockStore) Get(ctx context.Context, name string) (*Record, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[name]
	if !ok {
		return nil, nil, ErrNotFound{Name: name}
	}
	return record, append([]byte{}, m.payloads[name]...), nil
}

func (m *MockStore) List(ctx context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	return records, nil
}

func (m *MockStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[name]; !ok {
		return ErrNotFound{Name: name}
	}
	delete(m.records, name)
	delete(m.payloads, name)
	return nil
}

func (m *MockStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for name, record := range m.records {
		if record.CreatedAt.After(cutoff) {
			continue
		}
		delete(m.records, name)
		delete(m.payloads, name)
		removed++
	}
	return removed, nil
}

func (m *MockStore) Close() error { return nil }
