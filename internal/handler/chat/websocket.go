package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	chatservice "github.com/reactshop/community-chat/backend/internal/service/chat"
	"github.com/reactshop/community-chat/backend/pkg/utils"
)

// handleWebSocket upgrades the request and serves one chat connection until
// either side goes away.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := h.log.With("component", "ws")

	identity, err := h.resolveIdentity(r)
	if err != nil {
		log.Info("handshake rejected", "remote", r.RemoteAddr, "err", err)
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	peer, err := h.hub.Connect(r.Context(), r.URL.Query().Get("username"), identity)
	if err != nil {
		log.Error("connect failed", "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "chat unavailable"),
			time.Now().Add(h.opts.WriteTimeout))
		return
	}
	defer h.hub.Disconnect(peer)

	log = log.With("connection", peer.ID(), "username", peer.DisplayName())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(h.opts.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, conn, peer)
	}()

	h.readLoop(ctx, conn, peer)

	h.hub.Disconnect(peer)
	cancel()
	<-writerDone
}

// readLoop feeds every inbound frame to the hub. It returns when the
// connection fails, closes, or exceeds its frame rate.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, peer *chatservice.Peer) {
	log := h.log.With("component", "ws", "connection", peer.ID())
	limiter := newFrameLimiter(h.opts.MaxFramesPerSecond)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				log.Warn("frame exceeds size limit, closing", "limit", h.opts.MaxFrameBytes)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
				log.Info("read error", "err", err)
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		if !limiter.Allow(time.Now()) {
			log.Warn("frame rate exceeded, closing", "limit", h.opts.MaxFramesPerSecond)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many messages"),
				time.Now().Add(h.opts.WriteTimeout))
			return
		}

		if _, err := h.hub.Receive(ctx, peer, raw); err != nil {
			if errors.Is(err, chatservice.ErrInvalidPayload) || errors.Is(err, chatservice.ErrEmptyText) ||
				errors.Is(err, chatservice.ErrTextTooLong) || errors.Is(err, chatservice.ErrMissingParticipant) {
				log.Debug("frame rejected", "err", err)
			} else {
				log.Error("failed to accept message", "err", err)
			}
			if h.opts.ErrorFrames {
				h.hub.Reject(peer, rejectionReason(err))
			}
		}
	}
}

// writePump is the only writer on conn. It sends queued frames, error
// frames and pings, and closes the transport once the peer is released.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, peer *chatservice.Peer) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	defer conn.Close()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		return conn.WriteJSON(v)
	}

	for {
		select {
		case msg := <-peer.Outbound():
			if err := write(msg); err != nil {
				h.log.Debug("write failed", "component", "ws", "connection", peer.ID(), "err", err)
				return
			}
		case notice := <-peer.Notices():
			if err := write(notice); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-peer.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.opts.WriteTimeout))
			return
		case <-ctx.Done():
			return
		}
	}
}
