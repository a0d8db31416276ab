package appointment_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"callbridge.app/bridge/common/llm"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/store"
)

// mockLLM answers with a canned JSON document per request.
type mockLLM struct {
	mu     sync.Mutex
	calls  []llm.Request
	chatFn func(ctx context.Context, req llm.Request) (string, error)
}

func (m *mockLLM) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	body, err := m.chatFn(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(body), result); err != nil {
		return nil, err
	}
	return &llm.Response{}, nil
}

func (m *mockLLM) Model() string { return "mock" }

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockTranscriptStore struct {
	records map[string]model.TranscriptRecord
	loadErr map[string]error
	listErr error
}

func newMockTranscriptStore() *mockTranscriptStore {
	return &mockTranscriptStore{
		records: make(map[string]model.TranscriptRecord),
		loadErr: make(map[string]error),
	}
}

func (m *mockTranscriptStore) Save(_ context.Context, rec model.TranscriptRecord) error {
	m.records[rec.CallID] = rec
	return nil
}

func (m *mockTranscriptStore) Load(_ context.Context, callID string) (*model.TranscriptRecord, error) {
	if err := m.loadErr[callID]; err != nil {
		return nil, err
	}
	rec, ok := m.records[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *mockTranscriptStore) ListCallIDs(context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.records)+len(m.loadErr))
	for id := range m.records {
		ids = append(ids, id)
	}
	for id := range m.loadErr {
		if _, ok := m.records[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockTranscriptStore) DeleteAll(context.Context) (int, error) { return 0, nil }
func (m *mockTranscriptStore) Ping(context.Context) error             { return nil }
