package session

import (
	"context"
	"log/slog"
	"sync"

	"callbridge.app/bridge/internal/store"
	"callbridge.app/bridge/internal/transcript"
)

type tracked struct {
	session *Session
	cancel  context.CancelFunc
}

// Manager tracks live sessions so shutdown can cancel and wait for them.
type Manager struct {
	transcripts store.TranscriptStore
	finalizer   Finalizer

	mu       sync.Mutex
	sessions map[int64]tracked
	wg       sync.WaitGroup
}

func NewManager(transcripts store.TranscriptStore, finalizer Finalizer) *Manager {
	return &Manager{
		transcripts: transcripts,
		finalizer:   finalizer,
		sessions:    make(map[int64]tracked),
	}
}

// Open creates and registers a session. The returned context is cancelled by
// CancelAll; the caller must call Release when the session is finished.
func (m *Manager) Open(parent context.Context) (*Session, context.Context) {
	s := New(transcript.New(m.transcripts), m.finalizer)
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.sessions[s.ID()] = tracked{session: s, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	return s, ctx
}

func (m *Manager) Release(s *Session) {
	m.mu.Lock()
	t, ok := m.sessions[s.ID()]
	if ok {
		delete(m.sessions, s.ID())
	}
	m.mu.Unlock()

	if ok {
		t.cancel()
		m.wg.Done()
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CancelAll cancels every live session's context. Their relays then end as
// Cancelled and finalize as usual.
func (m *Manager) CancelAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) > 0 {
		slog.InfoContext(ctx, "cancelling live sessions", "count", len(m.sessions))
	}
	for _, t := range m.sessions {
		t.cancel()
	}
}

// Wait blocks until every session is released or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
