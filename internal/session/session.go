// Package session owns one call's lifecycle, from the telephony start event to
// the single finalization pass that produces its summary.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callbridge.app/bridge/common/id"
	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/transcript"
)

// Finalizer turns an ended session into its summary.
type Finalizer interface {
	Finalize(ctx context.Context, s *Session) (*model.CallSummary, error)
}

type Session struct {
	id         int64
	createdAt  time.Time
	transcript *transcript.Aggregator
	finalizer  Finalizer

	mu        sync.Mutex
	state     State
	terminal  State
	callID    string
	streamSID string
	startedAt time.Time
	bound     chan struct{}

	finalizeOnce sync.Once
	summary      *model.CallSummary
	finalizeErr  error
}

func New(agg *transcript.Aggregator, finalizer Finalizer) *Session {
	return &Session{
		id:         id.New(),
		createdAt:  time.Now(),
		transcript: agg,
		finalizer:  finalizer,
		state:      StateAwaitingStart,
		bound:      make(chan struct{}),
	}
}

func (s *Session) ID() int64 {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) Transcript() *transcript.Aggregator {
	return s.transcript
}

// Bound is closed once the telephony start event has bound the call.
func (s *Session) Bound() <-chan struct{} {
	return s.bound
}

func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TerminalState is the first recorded end-of-call reason, or "" while live.
func (s *Session) TerminalState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// LogContext returns ctx carrying this session's log fields.
func (s *Session) LogContext(ctx context.Context) context.Context {
	s.mu.Lock()
	fields := logger.LogFields{SessionID: logger.Ptr(s.id)}
	if s.callID != "" {
		fields.CallID = logger.Ptr(s.callID)
	}
	if s.streamSID != "" {
		fields.StreamID = logger.Ptr(s.streamSID)
	}
	s.mu.Unlock()
	return logger.WithLogFields(ctx, fields)
}

// Bind attaches the telephony identifiers. Only the first call in
// AwaitingStart has any effect; later start events are ignored.
func (s *Session) Bind(ctx context.Context, callID, streamSID string, startedAt time.Time) bool {
	s.mu.Lock()
	if s.state != StateAwaitingStart || callID == "" || streamSID == "" {
		s.mu.Unlock()
		return false
	}
	s.callID = callID
	s.streamSID = streamSID
	s.startedAt = startedAt
	s.state = StateStarted
	close(s.bound)
	s.mu.Unlock()

	s.transcript.Bind(ctx, callID, startedAt)
	slog.InfoContext(s.LogContext(ctx), "session bound")
	return true
}

// MarkStreaming records the first media frame.
func (s *Session) MarkStreaming() {
	s.mu.Lock()
	if s.state == StateStarted {
		s.state = StateStreaming
	}
	s.mu.Unlock()
}

// End records why the call ended. The first reason wins.
func (s *Session) End(reason State) bool {
	if !reason.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.live() {
		return false
	}
	s.state = reason
	s.terminal = reason
	return true
}

// Finalize runs finalization exactly once no matter how many paths call it.
// Every caller gets the same summary. A session that never recorded an end
// reason is treated as Disconnected.
func (s *Session) Finalize(ctx context.Context) (*model.CallSummary, error) {
	s.finalizeOnce.Do(func() {
		s.End(StateDisconnected)

		s.mu.Lock()
		s.state = StateFinalizing
		s.mu.Unlock()

		s.transcript.Close()

		ctx = s.LogContext(ctx)
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			Component: "bridge.session.finalize",
			State:     logger.Ptr(string(s.TerminalState())),
		})

		s.summary, s.finalizeErr = s.runFinalizer(ctx)

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	})
	return s.summary, s.finalizeErr
}

func (s *Session) runFinalizer(ctx context.Context) (summary *model.CallSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in finalization", "panic", r)
			summary, err = nil, fmt.Errorf("finalization panic: %v", r)
		}
	}()
	return s.finalizer.Finalize(ctx, s)
}
