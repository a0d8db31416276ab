// Package relay bridges a telephony media stream and a speech backend
// session for the lifetime of one call.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/backend"
	"callbridge.app/bridge/internal/events"
	"callbridge.app/bridge/internal/session"
	"callbridge.app/bridge/internal/telephony"
	"callbridge.app/bridge/internal/transcript"
	"golang.org/x/sync/errgroup"
)

// ErrBackpressure means the telephony side stopped draining audio for longer
// than the configured backpressure timeout.
var ErrBackpressure = errors.New("telephony writer backpressure")

var (
	errStopped      = errors.New("telephony stream stopped")
	errBackendEnded = errors.New("backend stream ended")
)

// TelephonyConn is the telephony media socket, normally a *websocket.Conn.
type TelephonyConn interface {
	telephonyWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Backend is the speech backend session, normally a *backend.Client.
type Backend interface {
	AppendAudio(payload string) error
	Next() (backend.Message, error)
	Close() error
}

type Config struct {
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	QueueSize           int
	BackpressureTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.BackpressureTimeout <= 0 {
		c.BackpressureTimeout = 2 * time.Second
	}
	return c
}

type Relay struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Relay {
	return &Relay{cfg: cfg.withDefaults(), now: time.Now}
}

// Run relays until either leg ends, the parent context is cancelled, or the
// telephony writer falls behind. It records the end reason on sess and
// returns it; it does not finalize.
func (r *Relay) Run(ctx context.Context, sess *session.Session, tel TelephonyConn, be Backend) session.State {
	ctx = sess.LogContext(ctx)
	w := newWriter(tel, r.cfg)
	w.dropped = func(n int) {
		slog.DebugContext(ctx, "queued audio cleared on barge-in", "frames", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wctx := logger.WithLogFields(gctx, logger.LogFields{Component: "bridge.relay.writer"})
		if err := w.run(wctx); err != nil {
			return fmt.Errorf("telephony write: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return r.inbound(logger.WithLogFields(gctx, logger.LogFields{Component: "bridge.relay.inbound"}), sess, tel, be)
	})
	g.Go(func() error {
		return r.outbound(logger.WithLogFields(gctx, logger.LogFields{Component: "bridge.relay.outbound"}), sess, be, w)
	})
	// Blocking reads only notice cancellation when their socket closes.
	g.Go(func() error {
		<-gctx.Done()
		_ = be.Close()
		_ = tel.Close()
		return nil
	})

	err := g.Wait()
	state := classify(ctx, err)
	sess.End(state)

	ctx = logger.WithLogFields(ctx, logger.LogFields{State: logger.Ptr(string(sess.TerminalState()))})
	if state == session.StateDisconnected {
		slog.WarnContext(ctx, "call relay ended", "reason", err)
	} else {
		slog.InfoContext(ctx, "call relay ended", "reason", err)
	}
	return sess.TerminalState()
}

func classify(parent context.Context, err error) session.State {
	switch {
	case errors.Is(err, errStopped):
		return session.StateStopped
	case parent.Err() != nil:
		return session.StateCancelled
	default:
		return session.StateDisconnected
	}
}

func (r *Relay) inbound(ctx context.Context, sess *session.Session, tel TelephonyConn, be Backend) error {
	for {
		_ = tel.SetReadDeadline(r.now().Add(r.cfg.ReadTimeout))
		_, data, err := tel.ReadMessage()
		if err != nil {
			return fmt.Errorf("telephony read: %w", err)
		}

		ev, err := telephony.Decode(data)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed telephony frame", "error", err)
			continue
		}

		switch e := ev.(type) {
		case telephony.Start:
			if sess.Bind(ctx, e.CallSID, e.StreamSID, r.now()) {
				ctx = sess.LogContext(ctx)
			} else {
				slog.WarnContext(ctx, "ignoring repeated start event", "stream_sid", e.StreamSID)
			}
		case telephony.Media:
			if e.Track != "" && e.Track != "inbound" {
				continue
			}
			sess.MarkStreaming()
			if err := be.AppendAudio(e.Payload); err != nil {
				return fmt.Errorf("backend write: %w", err)
			}
		case telephony.Stop:
			slog.InfoContext(ctx, "telephony stream stopped")
			return errStopped
		case telephony.Connected, telephony.Mark, telephony.DTMF:
		default:
			slog.DebugContext(ctx, "ignoring telephony event", "event", ev.Name())
		}
	}
}

func (r *Relay) outbound(ctx context.Context, sess *session.Session, be Backend, w *writer) error {
	agg := sess.Transcript()
	for {
		msg, err := be.Next()
		if err != nil {
			return fmt.Errorf("backend read: %w", err)
		}

		switch ev := events.Normalize(msg).(type) {
		case events.AudioFrameOut:
			if err := r.forwardAudio(ctx, sess, w, ev); err != nil {
				return err
			}
		case events.UtteranceText:
			r.appendUtterance(ctx, agg, ev)
		case events.UtteranceStarted:
			if err := r.bargeIn(ctx, sess, w); err != nil {
				return err
			}
		case events.StreamEnded:
			slog.InfoContext(ctx, "backend closed the session", "reason", ev.Reason)
			return errBackendEnded
		case events.Unrecognized:
			if ev.Type == "" {
				slog.WarnContext(ctx, "dropping malformed backend frame", "reason", ev.Reason, "size", len(msg.Raw))
				continue
			}
			slog.DebugContext(ctx, "dropping backend message", "type", ev.Type, "reason", ev.Reason)
		}
	}
}

func (r *Relay) forwardAudio(ctx context.Context, sess *session.Session, w *writer, ev events.AudioFrameOut) error {
	streamSID := sess.StreamSID()
	if streamSID == "" {
		slog.DebugContext(ctx, "discarding audio before the stream is bound")
		return nil
	}

	data, err := telephony.EncodeMedia(streamSID, ev.Payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping unencodable audio frame", "error", err)
		return nil
	}
	if err := w.enqueueAudio(ctx, data, r.cfg.BackpressureTimeout); err != nil {
		if errors.Is(err, ErrBackpressure) {
			slog.WarnContext(ctx, "telephony writer fell behind, degrading call",
				"timeout", r.cfg.BackpressureTimeout)
		}
		return err
	}
	return nil
}

// bargeIn clears agent audio buffered on the telephony leg once the caller
// starts talking.
func (r *Relay) bargeIn(ctx context.Context, sess *session.Session, w *writer) error {
	streamSID := sess.StreamSID()
	if streamSID == "" {
		return nil
	}
	data, err := telephony.EncodeClear(streamSID)
	if err != nil {
		slog.WarnContext(ctx, "encoding clear frame failed", "error", err)
		return nil
	}
	return w.enqueueControl(ctx, frame{payload: data, flushAudio: true})
}

func (r *Relay) appendUtterance(ctx context.Context, agg *transcript.Aggregator, ev events.UtteranceText) {
	if _, err := agg.Append(ctx, ev.Role, ev.Text, ev.ItemID); err != nil {
		slog.WarnContext(ctx, "utterance dropped", "error", err, "role", string(ev.Role))
	}
}
