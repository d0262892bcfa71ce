package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/reactshop/community-chat/backend/internal/auth"
	chatmodel "github.com/reactshop/community-chat/backend/internal/model/chat"
	chatservice "github.com/reactshop/community-chat/backend/internal/service/chat"
	"github.com/reactshop/community-chat/backend/pkg/utils"
)

var errUnauthorized = errors.New("unauthorized")

// Options tunes the chat transports.
type Options struct {
	WriteTimeout       time.Duration
	PongWait           time.Duration
	MaxFrameBytes      int64
	MaxFramesPerSecond int
	ErrorFrames        bool
	AuthRequired       bool
	HeartbeatInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 8192
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	return o
}

// Handler serves the community chat over WebSocket, SSE and REST.
type Handler struct {
	hub      *chatservice.Hub
	verifier *auth.Verifier
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New creates the chat handler. A nil verifier disables token checks.
func New(hub *chatservice.Hub, verifier *auth.Verifier, log *slog.Logger, opts Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		opts:     opts.withDefaults(),
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the REST and SSE endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/messages", h.handleListMessages)
	r.Get("/chat/stream", h.handleStream)
}

// RegisterWebSocketRoutes mounts the WebSocket endpoint and its legacy alias.
func (h *Handler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/chat", h.handleWebSocket)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := utils.QueryInt(r, "limit", chatservice.HistoryLimit)
	if limit < 1 {
		limit = 1
	}

	messages, err := h.hub.History(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to load history", "err", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	if messages == nil {
		messages = []chatmodel.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// resolveIdentity verifies the handshake token. A nil identity with a nil
// error means the connection proceeds on payload identity.
func (h *Handler) resolveIdentity(r *http.Request) (*chatservice.Identity, error) {
	if h.verifier == nil {
		return nil, nil
	}

	token := auth.TokenFromRequest(r)
	if token == "" {
		if h.opts.AuthRequired {
			return nil, errUnauthorized
		}
		return nil, nil
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, errors.Join(errUnauthorized, err)
	}
	return &chatservice.Identity{
		UserID:   claims.ID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// rejectionReason is the text of the error frame sent for err.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, chatservice.ErrInvalidPayload):
		return "invalid message payload"
	case errors.Is(err, chatservice.ErrEmptyText):
		return "message text is required"
	case errors.Is(err, chatservice.ErrTextTooLong):
		return "message text is too long"
	case errors.Is(err, chatservice.ErrMissingParticipant):
		return "userId is required"
	default:
		return "message could not be saved"
	}
}
