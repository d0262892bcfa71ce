package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/reactshop/community-chat/backend/internal/handler/chat"
	chatModel "github.com/reactshop/community-chat/backend/internal/model/chat"
	chatService "github.com/reactshop/community-chat/backend/internal/service/chat"
)

func newTestRouter() http.Handler {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := chatService.NewHub(chatModel.NewMemoryStore(nil), log, chatService.Options{})
	return NewRouter(hub, chat.New(hub, nil, log, chat.Options{}))
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	req.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	req.NoError(json.NewDecoder(rec.Body).Decode(&body))
	req.Equal("ok", body["status"])
	req.EqualValues(0, body["connections"])
}

func TestMessagesRouteMountedUnderAPI(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`[]`, rec.Body.String())
	req.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRouteRejectsPlainRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
