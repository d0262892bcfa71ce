package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

const (
	// HistoryLimit is the number of messages replayed to a new connection.
	HistoryLimit = 50
	// DefaultDisplayName is bound when the handshake carries no username.
	DefaultDisplayName = "Guest"

	defaultSendBuffer    = 256
	defaultStoreTimeout  = 5 * time.Second
	defaultMaxTextLength = 2000
)

// Censor rewrites message text before it is persisted.
type Censor interface {
	Censor(text string) string
}

// Options tunes a Hub. Zero values fall back to defaults.
type Options struct {
	SendBuffer    int
	StoreTimeout  time.Duration
	MaxTextLength int
	Censor        Censor
	Now           func() time.Time
}

// Hub owns connection lifecycle, history replay, persistence and fan-out
// for the community chat.
//
// Persist and fan-out run under one lock, so every connection observes
// accepted messages in store insertion order.
type Hub struct {
	store    chat.Store
	registry *Registry
	log      *slog.Logger
	validate *validator.Validate

	sendBuffer    int
	storeTimeout  time.Duration
	maxTextLength int
	censor        Censor
	now           func() time.Time

	broadcastMu sync.Mutex
}

// NewHub bootstraps a hub over store.
func NewHub(store chat.Store, log *slog.Logger, opts Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		store:         store,
		registry:      NewRegistry(),
		log:           log.With("component", "chat"),
		validate:      validator.New(),
		sendBuffer:    opts.SendBuffer,
		storeTimeout:  opts.StoreTimeout,
		maxTextLength: opts.MaxTextLength,
		censor:        opts.Censor,
		now:           opts.Now,
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	// history plus a full batch of live messages must fit while replaying
	if h.sendBuffer < 2*HistoryLimit {
		h.sendBuffer = 2 * HistoryLimit
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = defaultStoreTimeout
	}
	if h.maxTextLength <= 0 {
		h.maxTextLength = defaultMaxTextLength
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Connect registers a new connection and replays the most recent history to
// it. A store failure only costs the history; the connection stays open.
func (h *Hub) Connect(ctx context.Context, displayName string, identity *Identity) (*Peer, error) {
	name := strings.TrimSpace(displayName)
	if name == "" && identity != nil {
		name = identity.Username
	}
	if name == "" {
		name = DefaultDisplayName
	}

	peer := newPeer(name, identity, h.sendBuffer, HistoryLimit)
	if err := h.registry.Add(peer); err != nil {
		return nil, err
	}

	h.log.Info("connection opened", "connection", peer.id, "username", name, "connections", h.registry.Len())

	history, err := h.History(ctx, HistoryLimit)
	if err != nil {
		h.log.Warn("history unavailable, continuing without it", "connection", peer.id, "err", err)
		history = nil
	}

	if err := peer.replay(history); err != nil {
		h.Disconnect(peer)
		return nil, fmt.Errorf("replay history: %w", err)
	}
	return peer, nil
}

// Receive validates a raw client frame, persists it and broadcasts the
// stored record to every registered connection, the sender included.
//
// The sender closing its transport does not cancel an accepted message: it
// is still persisted and delivered to everyone else.
func (h *Hub) Receive(ctx context.Context, peer *Peer, raw []byte) (chat.Message, error) {
	in, err := chat.DecodeInbound(raw)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	msg, err := h.prepare(peer, in)
	if err != nil {
		return chat.Message{}, err
	}

	ctx = context.WithoutCancel(ctx)

	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	msg.Timestamp = h.now().UnixMilli()

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	id, err := h.store.Append(storeCtx, msg)
	cancel()
	if err != nil {
		return chat.Message{}, fmt.Errorf("persist message: %w", err)
	}
	msg.ID = id

	h.fanOut(msg)
	return msg, nil
}

// Disconnect removes peer and releases it. Calling it again is a no-op.
func (h *Hub) Disconnect(peer *Peer) {
	if peer == nil {
		return
	}
	removed := h.registry.Remove(peer)
	if peer.close() || removed {
		h.log.Info("connection closed", "connection", peer.id, "username", peer.displayName, "connections", h.registry.Len())
	}
}

// Reject reports reason to peer with an error frame.
func (h *Hub) Reject(peer *Peer, reason string) {
	if peer == nil {
		return
	}
	if !peer.notify(reason) {
		h.log.Debug("error frame dropped", "connection", peer.id, "reason", reason)
	}
}

// History returns at most limit of the newest messages, oldest first.
func (h *Hub) History(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	history, err := h.store.Recent(storeCtx, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	return h.registry.Len()
}

func (h *Hub) prepare(peer *Peer, in chat.Inbound) (chat.Message, error) {
	if peer != nil {
		if id, ok := peer.Identity(); ok {
			in.UserID = id.UserID
			in.Username = id.Username
		}
		if strings.TrimSpace(in.Username) == "" {
			in.Username = peer.DisplayName()
		}
	}

	if err := h.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Field() == "UserID" {
			return chat.Message{}, ErrMissingParticipant
		}
		return chat.Message{}, ErrEmptyText
	}
	if strings.TrimSpace(in.Text) == "" {
		return chat.Message{}, ErrEmptyText
	}
	if err := h.validate.Var(in.Text, fmt.Sprintf("max=%d", h.maxTextLength)); err != nil {
		return chat.Message{}, ErrTextTooLong
	}

	text := in.Text
	if h.censor != nil {
		text = h.censor.Censor(text)
	}

	return chat.Message{
		UserID:   in.UserID,
		Username: in.Username,
		Text:     text,
	}, nil
}

func (h *Hub) fanOut(msg chat.Message) {
	h.registry.ForEach(func(p *Peer) {
		err := p.deliver(msg)
		switch {
		case err == nil:
		case errors.Is(err, ErrSendBufferFull):
			h.log.Warn("evicting connection with full send buffer", "connection", p.id, "username", p.displayName)
			h.Disconnect(p)
		default:
			h.log.Debug("skipping closed connection", "connection", p.id, "err", err)
		}
	})
}
