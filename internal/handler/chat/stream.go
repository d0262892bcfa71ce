package chat

import (
	"net/http"
	"time"

	"github.com/reactshop/community-chat/backend/pkg/utils"
)

// handleStream serves a read-only feed: history first, then every accepted
// message, each as one "data:" event.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	identity, err := h.resolveIdentity(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := r.Context()
	peer, err := h.hub.Connect(ctx, r.URL.Query().Get("username"), identity)
	if err != nil {
		h.log.Error("sse connect failed", "component", "sse", "err", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}
	defer h.hub.Disconnect(peer)

	log := h.log.With("component", "sse", "connection", peer.ID())
	log.Debug("stream opened")

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "ready", map[string]string{"connection": peer.ID()}); err != nil {
		return
	}

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return
		case <-peer.Done():
			return
		case msg := <-peer.Outbound():
			if err := utils.SendSSEChunk(w, flusher, msg); err != nil {
				log.Debug("stream write failed", "err", err)
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
