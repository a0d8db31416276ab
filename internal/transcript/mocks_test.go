package transcript_test

import (
	"context"
	"sync"

	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/store"
)

type mockStore struct {
	mu      sync.Mutex
	saved   []model.TranscriptRecord
	records map[string]model.TranscriptRecord

	saveFn func(ctx context.Context, rec model.TranscriptRecord) error
	loadFn func(ctx context.Context, callID string) (*model.TranscriptRecord, error)
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]model.TranscriptRecord)}
}

func (m *mockStore) Save(ctx context.Context, rec model.TranscriptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	if m.saveFn != nil {
		return m.saveFn(ctx, rec)
	}
	m.records[rec.CallID] = rec
	return nil
}

func (m *mockStore) Load(ctx context.Context, callID string) (*model.TranscriptRecord, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, callID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *mockStore) ListCallIDs(context.Context) ([]string, error) { return nil, nil }
func (m *mockStore) DeleteAll(context.Context) (int, error)        { return 0, nil }
func (m *mockStore) Ping(context.Context) error                    { return nil }

func (m *mockStore) saves() []model.TranscriptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TranscriptRecord(nil), m.saved...)
}
