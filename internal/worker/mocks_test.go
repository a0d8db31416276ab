package worker_test

import (
	"context"
	"sync"

	"callbridge.app/bridge/internal/model"
)

type mockNotifier struct {
	mu        sync.Mutex
	delivered []model.Notification
	notifyFn  func(ctx context.Context, n model.Notification) error
}

func (m *mockNotifier) Notify(ctx context.Context, n model.Notification) error {
	if m.notifyFn != nil {
		if err := m.notifyFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.delivered = append(m.delivered, n)
	m.mu.Unlock()
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}
