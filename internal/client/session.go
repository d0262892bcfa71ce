// Package client is a Go participant session for the community chat: it
// connects over WebSocket, sends messages and keeps a deduplicated local
// transcript of everything the server delivers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

var (
	ErrNotConnected     = errors.New("session not connected")
	ErrAlreadyConnected = errors.New("session already connected")
	ErrUnauthorized     = errors.New("handshake rejected: unauthorized")
)

const writeTimeout = 10 * time.Second

// Identity is what the session presents to the server.
type Identity struct {
	UserID   string
	Username string
	// Token is an optional storefront session token.
	Token string
}

// frame is either a chat message or an error frame.
type frame struct {
	chat.Message
	Error string `json:"error"`
}

// Session is one participant connection. Handlers run on the session's read
// goroutine, one frame at a time, in delivery order.
type Session struct {
	serverURL string
	dialer    *websocket.Dialer
	log       *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	identity   Identity
	done       chan struct{}
	dialing    bool
	handlers   map[int]func(chat.Message)
	nextID     int
	onError    func(string)
	seen       map[string]struct{}
	transcript []chat.Message
}

// New returns a session for serverURL, e.g. "ws://localhost:8080/ws".
func New(serverURL string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		serverURL: serverURL,
		dialer:    websocket.DefaultDialer,
		log:       log.With("component", "client"),
		handlers:  make(map[int]func(chat.Message)),
		seen:      make(map[string]struct{}),
	}
}

// Connect opens the transport. It returns once the handshake completed.
// History replayed by the server arrives through the message handlers.
func (s *Session) Connect(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	if s.dialing || s.liveLocked() {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.dialing = true
	s.mu.Unlock()

	conn, err := s.dial(ctx, identity)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialing = false
	if err != nil {
		return err
	}

	s.conn = conn
	s.identity = identity
	s.done = make(chan struct{})
	go s.readPump(conn, s.done)

	s.log.Debug("connected", "url", s.serverURL, "username", identity.Username)
	return nil
}

// liveLocked reports whether a transport is still reading, releasing one
// that died on its own.
func (s *Session) liveLocked() bool {
	if s.conn == nil {
		return false
	}
	select {
	case <-s.done:
		_ = s.conn.Close()
		s.conn = nil
		return false
	default:
		return true
	}
}

func (s *Session) dial(ctx context.Context, identity Identity) (*websocket.Conn, error) {
	u, err := url.Parse(s.serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	if identity.Username != "" {
		q.Set("username", identity.Username)
	}
	if identity.Token != "" {
		q.Set("token", identity.Token)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", s.serverURL, err)
	}
	return conn, nil
}

// Send submits text under the session identity.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	conn, identity := s.conn, s.identity
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(chat.Inbound{
		UserID:   identity.UserID,
		Username: identity.Username,
		Text:     text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// OnMessage registers handler for every message not seen before. The
// returned function removes it.
func (s *Session) OnMessage(handler func(chat.Message)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// OnError registers handler for error frames. Error frames never enter the
// transcript.
func (s *Session) OnError(handler func(reason string)) {
	s.mu.Lock()
	s.onError = handler
	s.mu.Unlock()
}

// Disconnect closes the transport and drops every handler. The transcript is
// kept so a later Connect does not duplicate replayed history.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn = nil
	s.handlers = make(map[int]func(chat.Message))
	s.onError = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// Done is closed when the current transport stops reading. It is nil before
// the first Connect.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Transcript returns the messages received so far, in delivery order and
// without duplicates.
func (s *Session) Transcript() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.transcript...)
}

func (s *Session) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("connection closed", "err", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		if f.Error != "" && f.ID == "" {
			s.dispatchError(f.Error)
			continue
		}
		s.dispatch(f.Message)
	}
}

func (s *Session) dispatch(msg chat.Message) {
	s.mu.Lock()
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.transcript = append(s.transcript, msg)
	handlers := lo.Values(s.handlers)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

func (s *Session) dispatchError(reason string) {
	s.mu.Lock()
	handler := s.onError
	s.mu.Unlock()
	if handler != nil {
		handler(reason)
	}
}
