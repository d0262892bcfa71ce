package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/reactshop/community-chat/backend/internal/auth"
	chatmodel "github.com/reactshop/community-chat/backend/internal/model/chat"
	chatservice "github.com/reactshop/community-chat/backend/internal/service/chat"
)

const testSecret = "storefront-secret"

type testServer struct {
	*httptest.Server
	hub   *chatservice.Hub
	store *chatmodel.MemoryStore
}

func newTestServer(t *testing.T, opts Options, verifier *auth.Verifier, seed []chatmodel.Message) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := chatmodel.NewMemoryStore(seed)
	hub := chatservice.NewHub(store, log, chatservice.Options{})
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = time.Hour
	}
	h := New(hub, verifier, log, opts)

	r := chi.NewRouter()
	h.RegisterWebSocketRoutes(r)
	r.Route("/api", h.RegisterRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, store: store}
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func seedMessages(n int) []chatmodel.Message {
	items := make([]chatmodel.Message, n)
	for i := range items {
		items[i] = chatmodel.Message{
			ID:        fmt.Sprintf("seed-%02d", i),
			UserID:    "u0",
			Username:  "seed",
			Text:      fmt.Sprintf("m%d", i),
			Timestamp: int64(i),
		}
	}
	return items
}

func readMessage(t *testing.T, conn *websocket.Conn) chatmodel.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg chatmodel.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func signToken(t *testing.T, id, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		ID:       id,
		Username: username,
		Role:     "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestWebSocketBroadcastReachesEveryConnection(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, nil, nil)

	// Given three connected clients
	a := srv.dial(t, "/ws?username=alice")
	b := srv.dial(t, "/ws?username=bob")
	c := srv.dial(t, "/chat?username=carol")
	req.Eventually(func() bool { return srv.hub.Connections() == 3 }, 2*time.Second, 10*time.Millisecond)

	// When alice says hi
	send(t, a, `{"userId":"u1","username":"alice","text":"hi"}`)

	// Then every client, alice included, receives the stored record once
	for _, conn := range []*websocket.Conn{a, b, c} {
		msg := readMessage(t, conn)
		req.Equal("hi", msg.Text)
		req.Equal("alice", msg.Username)
		req.Equal("u1", msg.UserID)
		req.NotEmpty(msg.ID)
		req.NotZero(msg.Timestamp)
	}

	count, err := srv.store.Count(context.Background())
	req.NoError(err)
	req.Equal(1, count)
}

func TestWebSocketReplaysNewestHistory(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, nil, seedMessages(60))

	conn := srv.dial(t, "/ws?username=dave")

	for i := 10; i < 60; i++ {
		msg := readMessage(t, conn)
		req.Equal(fmt.Sprintf("m%d", i), msg.Text)
	}
}

func TestWebSocketUsernameFallback(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, nil, nil)

	guest := srv.dial(t, "/ws")
	send(t, guest, `{"userId":"u1","text":"hello"}`)
	req.Equal("Guest", readMessage(t, guest).Username)

	named := srv.dial(t, "/ws?username=bob")
	// named joins after the first message and receives it as history
	req.Equal("hello", readMessage(t, named).Text)

	send(t, named, `{"userId":"u2","text":"hey"}`)
	req.Equal("bob", readMessage(t, named).Username)
}

func TestWebSocketKeepsConnectionOnRejectedFrames(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, nil, nil)
	conn := srv.dial(t, "/ws?username=alice")

	send(t, conn, `not json`)
	send(t, conn, `{"userId":"u1","text":""}`)
	send(t, conn, `{"text":"no user"}`)
	send(t, conn, `{"userId":"u1","text":"valid"}`)

	msg := readMessage(t, conn)
	req.Equal("valid", msg.Text)

	count, err := srv.store.Count(context.Background())
	req.NoError(err)
	req.Equal(1, count)
}

func TestWebSocketErrorFrames(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{ErrorFrames: true}, nil, nil)
	conn := srv.dial(t, "/ws?username=alice")

	send(t, conn, `{"userId":"u1","text":"   "}`)

	req.NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	var frame map[string]any
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("message text is required", frame["error"])
	req.NotContains(frame, "id")
}

func TestWebSocketRequiresValidTokenWhenConfigured(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{AuthRequired: true}, auth.NewVerifier(testSecret), nil)

	// Given no token
	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws"), nil)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Given a forged token
	_, resp, err = websocket.DefaultDialer.Dial(srv.wsURL("/ws?token=forged"), nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Given a valid token, payload identity is replaced by the token identity
	conn := srv.dial(t, "/ws?token="+signToken(t, "42", "carol"))
	send(t, conn, `{"userId":"999","username":"mallory","text":"hi"}`)

	msg := readMessage(t, conn)
	req.Equal("42", msg.UserID)
	req.Equal("carol", msg.Username)
}

func TestWebSocketTokenOptionalByDefault(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, auth.NewVerifier(testSecret), nil)

	conn := srv.dial(t, "/ws?username=alice")
	send(t, conn, `{"userId":"u1","text":"hi"}`)
	req.Equal("alice", readMessage(t, conn).Username)
}

func TestWebSocketClosesFloodingConnection(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{MaxFramesPerSecond: 2}, nil, nil)
	conn := srv.dial(t, "/ws?username=alice")
	req.Eventually(func() bool { return srv.hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"userId":"u1","text":"spam"}`))
	}

	var err error
	for err == nil {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err = conn.ReadMessage()
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		req.Equal(websocket.ClosePolicyViolation, closeErr.Code)
	}
	req.Eventually(func() bool { return srv.hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)

	count, cerr := srv.store.Count(context.Background())
	req.NoError(cerr)
	req.LessOrEqual(count, 2)
}

func TestWebSocketClosesOnOversizedFrame(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{MaxFrameBytes: 64}, nil, nil)
	conn := srv.dial(t, "/ws?username=alice")
	req.Eventually(func() bool { return srv.hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"userId":"u1","text":"`+strings.Repeat("x", 200)+`"}`))

	req.Eventually(func() bool { return srv.hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	count, err := srv.store.Count(context.Background())
	req.NoError(err)
	req.Zero(count)
}

func TestWebSocketDisconnectReleasesConnection(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, Options{}, nil, nil)
	a := srv.dial(t, "/ws?username=alice")
	b := srv.dial(t, "/ws?username=bob")
	req.Eventually(func() bool { return srv.hub.Connections() == 2 }, 2*time.Second, 10*time.Millisecond)

	req.NoError(a.Close())
	req.Eventually(func() bool { return srv.hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, b, `{"userId":"u2","text":"still here"}`)
	req.Equal("still here", readMessage(t, b).Text)
}
