package handler_test

import (
	"context"
	"errors"
	"sync"

	"callbridge.app/bridge/internal/backend"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/session"
	"callbridge.app/bridge/internal/store"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockArchive struct {
	records map[string]model.CallSummary
	getErr  error
}

func (m *mockArchive) Insert(_ context.Context, s model.CallSummary) error {
	m.records[s.CallID] = s
	return nil
}

func (m *mockArchive) Get(_ context.Context, callID string) (*model.CallSummary, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.records[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

type finalized struct {
	callID string
	state  session.State
}

type recordingFinalizer struct {
	done chan finalized
}

func (f *recordingFinalizer) Finalize(_ context.Context, s *session.Session) (*model.CallSummary, error) {
	f.done <- finalized{callID: s.CallID(), state: s.TerminalState()}
	return &model.CallSummary{CallID: s.CallID()}, nil
}

type nopTranscripts struct{}

func (nopTranscripts) Save(context.Context, model.TranscriptRecord) error { return nil }
func (nopTranscripts) Load(context.Context, string) (*model.TranscriptRecord, error) {
	return nil, store.ErrNotFound
}
func (nopTranscripts) ListCallIDs(context.Context) ([]string, error) { return nil, nil }
func (nopTranscripts) DeleteAll(context.Context) (int, error)        { return 0, nil }
func (nopTranscripts) Ping(context.Context) error                    { return nil }

type idleBackend struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func newIdleBackend() *idleBackend {
	return &idleBackend{closed: make(chan struct{})}
}

func (b *idleBackend) AppendAudio(string) error { return nil }

func (b *idleBackend) Next() (backend.Message, error) {
	<-b.closed
	return backend.Message{}, backend.ErrClosed
}

func (b *idleBackend) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

var errDial = errors.New("backend unreachable")
