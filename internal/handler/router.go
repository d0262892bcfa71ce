package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reactshop/community-chat/backend/internal/handler/chat"
	middlewarePkg "github.com/reactshop/community-chat/backend/internal/middleware"
	chatService "github.com/reactshop/community-chat/backend/internal/service/chat"
	"github.com/reactshop/community-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the chat hub.
func NewRouter(hub *chatService.Hub, chatHandler *chat.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": hub.Connections(),
		})
	})

	// WebSocket endpoints sit at the root where the frontend expects them
	chatHandler.RegisterWebSocketRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}
