package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/relay"
	"callbridge.app/bridge/internal/session"
	"callbridge.app/bridge/internal/telephony"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// BackendDialer opens a configured speech backend session for one call.
type BackendDialer func(ctx context.Context) (relay.Backend, error)

type CallConfig struct {
	OwnerName       string
	PublicHost      string // host the telephony provider reaches us on; falls back to the request host
	MaxFrameBytes   int64
	FinalizeTimeout time.Duration
}

type CallHandler struct {
	cfg      CallConfig
	manager  *session.Manager
	relay    *relay.Relay
	dial     BackendDialer
	upgrader websocket.Upgrader
}

func NewCallHandler(cfg CallConfig, manager *session.Manager, r *relay.Relay, dial BackendDialer) *CallHandler {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 60 * time.Second
	}
	return &CallHandler{
		cfg:     cfg,
		manager: manager,
		relay:   r,
		dial:    dial,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony providers do not send an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// IncomingCall answers the telephony webhook with TwiML that connects the
// call audio to the media stream endpoint.
func (h *CallHandler) IncomingCall(c *gin.Context) {
	ctx := c.Request.Context()

	host := h.cfg.PublicHost
	if host == "" {
		host = c.Request.Host
	}

	body, err := telephony.IncomingCallTwiML(h.cfg.OwnerName, "wss://"+host+"/media-stream")
	if err != nil {
		slog.ErrorContext(ctx, "building incoming call twiml failed", "error", err)
		c.Data(http.StatusOK, "application/xml", telephony.ErrorTwiML())
		return
	}

	slog.InfoContext(ctx, "incoming call", "call_sid", c.PostForm("CallSid"), "from", c.PostForm("From"))
	c.Data(http.StatusOK, "application/xml", body)
}

// MediaStream runs one call: upgrade, relay until either leg ends, then
// finalize. The request blocks for the duration of the call.
func (h *CallHandler) MediaStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "media stream upgrade failed", "error", err)
		return
	}
	if h.cfg.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}

	sess, ctx := h.manager.Open(c.Request.Context())
	defer h.manager.Release(sess)
	ctx = logger.WithLogFields(sess.LogContext(ctx), logger.LogFields{Component: "bridge.http.media_stream"})

	slog.InfoContext(ctx, "media stream connected", "remote_addr", conn.RemoteAddr().String())

	be, err := h.dial(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "backend connect failed", "error", err)
		_ = conn.Close()
		sess.End(session.StateDisconnected)
	} else {
		h.relay.Run(ctx, sess, conn, be)
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.FinalizeTimeout)
	defer cancel()
	if _, err := sess.Finalize(fctx); err != nil {
		slog.ErrorContext(fctx, "call finalization failed", "error", err)
	}
}
