package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// telephonyWriter is the write half of the telephony socket.
type telephonyWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

type frame struct {
	payload []byte
	// flushAudio drops every audio frame queued before this one.
	flushAudio bool
}

// writer owns all writes to the telephony socket. Control frames (clear) go
// on the priority channel and always preempt queued audio.
type writer struct {
	ws           telephonyWriter
	writeTimeout time.Duration
	pingInterval time.Duration
	priority     chan frame
	audio        chan frame
	dropped      func(n int)
}

func newWriter(ws telephonyWriter, cfg Config) *writer {
	return &writer{
		ws:           ws,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		priority:     make(chan frame, 8),
		audio:        make(chan frame, cfg.QueueSize),
	}
}

// enqueueAudio blocks up to timeout for room in the audio queue, then gives
// up with ErrBackpressure. Audio is never dropped silently.
func (w *writer) enqueueAudio(ctx context.Context, payload []byte, timeout time.Duration) error {
	f := frame{payload: payload}
	select {
	case w.audio <- f:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case w.audio <- f:
		return nil
	case <-timer.C:
		return ErrBackpressure
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) enqueueControl(ctx context.Context, f frame) error {
	select {
	case w.priority <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) run(ctx context.Context) error {
	pingTicker := time.NewTicker(w.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Hard priority: control frames before any queued audio.
		select {
		case f := <-w.priority:
			if err := w.writeControlFrame(f); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-pingTicker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(w.writeTimeout)); err != nil {
				return err
			}
		case f := <-w.priority:
			if err := w.writeControlFrame(f); err != nil {
				return err
			}
		case f := <-w.audio:
			if err := w.write(f.payload); err != nil {
				return err
			}
		}
	}
}

func (w *writer) writeControlFrame(f frame) error {
	if f.flushAudio {
		w.drainAudio()
	}
	return w.write(f.payload)
}

func (w *writer) drainAudio() {
	n := 0
	for {
		select {
		case <-w.audio:
			n++
		default:
			if n > 0 && w.dropped != nil {
				w.dropped(n)
			}
			return
		}
	}
}

func (w *writer) write(payload []byte) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
