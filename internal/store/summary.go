package store

import (
	"context"
	"sort"
	"sync"

	"callbridge.app/bridge/internal/model"
)

// MemorySummaryStore keeps the day's summaries in process. The daily reset
// drains it.
type MemorySummaryStore struct {
	mu        sync.RWMutex
	summaries map[string]model.CallSummary
}

func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{summaries: make(map[string]model.CallSummary)}
}

func (s *MemorySummaryStore) PutIfAbsent(_ context.Context, summary model.CallSummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.summaries[summary.CallID]; ok {
		return false, nil
	}
	summary.Transcript = model.CloneEntries(summary.Transcript)
	s.summaries[summary.CallID] = summary
	return true, nil
}

func (s *MemorySummaryStore) Get(_ context.Context, callID string) (*model.CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[callID]
	if !ok {
		return nil, ErrNotFound
	}
	summary.Transcript = model.CloneEntries(summary.Transcript)
	return &summary, nil
}

// List returns summaries oldest first.
func (s *MemorySummaryStore) List(_ context.Context) ([]model.CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

func (s *MemorySummaryStore) Drain(_ context.Context) ([]model.CallSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sorted()
	s.summaries = make(map[string]model.CallSummary)
	return out, nil
}

func (s *MemorySummaryStore) sorted() []model.CallSummary {
	out := make([]model.CallSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		summary.Transcript = model.CloneEntries(summary.Transcript)
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
