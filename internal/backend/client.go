// Package backend is the conversational speech backend leg: an OpenAI Realtime
// session over a WebSocket.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TypeClosed is synthesized by Client when the backend closes the socket
// cleanly, so the close flows through the same path as any other message.
const TypeClosed = "connection.closed"

var ErrClosed = errors.New("backend session closed")

// Message is one decoded backend message: its tag plus the raw payload.
type Message struct {
	Type string
	Raw  json.RawMessage
}

// Conn is the subset of *websocket.Conn the client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DialConfig struct {
	URL              string
	Model            string
	APIKey           string
	HandshakeTimeout time.Duration
	Options
}

// SessionConfig is sent as session.update right after connecting.
type SessionConfig struct {
	Instructions       string
	Voice              string
	AudioFormat        string // applies to both directions; g711_ulaw matches the telephony leg
	TranscriptionModel string
}

type Client struct {
	conn Conn
	opts Options

	writeMu sync.Mutex
	closed  bool
	mu      sync.Mutex
}

func NewClient(conn Conn, opts Options) *Client {
	return &Client{conn: conn, opts: opts}
}

// Dial opens a realtime session.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend api key is required")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	q := u.Query()
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing backend (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing backend: %w", err)
	}

	return NewClient(conn, cfg.Options), nil
}

// Connect dials and configures a session in one step. The client is closed
// if configuration fails.
func Connect(ctx context.Context, dial DialConfig, session SessionConfig) (*Client, error) {
	c, err := Dial(ctx, dial)
	if err != nil {
		return nil, err
	}
	if err := c.Configure(session); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("configuring backend session: %w", err)
	}
	return c, nil
}

// Configure sends session.update.
func (c *Client) Configure(cfg SessionConfig) error {
	format := cfg.AudioFormat
	if format == "" {
		format = "g711_ulaw"
	}
	transcription := cfg.TranscriptionModel
	if transcription == "" {
		transcription = "whisper-1"
	}

	session := map[string]any{
		"turn_detection":      map[string]any{"type": "server_vad"},
		"input_audio_format":  format,
		"output_audio_format": format,
		"modalities":          []string{"text", "audio"},
		"input_audio_transcription": map[string]any{
			"model": transcription,
		},
	}
	if cfg.Voice != "" {
		session["voice"] = cfg.Voice
	}
	if cfg.Instructions != "" {
		session["instructions"] = cfg.Instructions
	}

	return c.send(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

// AppendAudio forwards one base64 audio chunk via input_audio_buffer.append.
func (c *Client) AppendAudio(payload string) error {
	return c.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// Next blocks for the next backend message. The read deadline doubles as the
// backend-side watchdog. A clean close is reported once as TypeClosed; after
// that Next returns ErrClosed. Only read failures are errors.
func (c *Client) Next() (Message, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Message{}, ErrClosed
	}

	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			reason, _ := json.Marshal(map[string]string{"reason": err.Error()})
			return Message{Type: TypeClosed, Raw: reason}, nil
		}
		return Message{}, fmt.Errorf("reading backend message: %w", err)
	}

	// An undecodable frame comes back untagged so the caller can drop it
	// without ending the session.
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Message{Raw: data}, nil
	}
	return Message{Type: head.Type, Raw: data}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding backend message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing backend message: %w", err)
	}
	return nil
}
