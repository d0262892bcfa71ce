package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

// Identity is a participant identity verified when the connection was
// established.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// Peer is one registered participant connection. The transport drains
// Outbound and Notices and stops once Done is closed.
type Peer struct {
	id          string
	displayName string
	identity    *Identity

	out     chan chat.Message
	notices chan chat.ErrorFrame
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	closed    bool
	replaying bool
	pending   []chat.Message
	holdLimit int
}

// newPeer sizes the outbound queue to buffer. While replaying, at most
// buffer-reserve live messages are held so reserve history frames still fit.
func newPeer(displayName string, identity *Identity, buffer, reserve int) *Peer {
	holdLimit := buffer - reserve
	if holdLimit < 1 {
		holdLimit = 1
	}
	return &Peer{
		id:          uuid.NewString(),
		displayName: displayName,
		identity:    identity,
		holdLimit:   holdLimit,
		out:         make(chan chat.Message, buffer),
		notices:     make(chan chat.ErrorFrame, 8),
		done:        make(chan struct{}),
		replaying:   true,
	}
}

// ID returns the server-assigned connection identifier.
func (p *Peer) ID() string { return p.id }

// DisplayName returns the name bound at connect time.
func (p *Peer) DisplayName() string { return p.displayName }

// Identity returns the verified identity, if the handshake carried one.
func (p *Peer) Identity() (Identity, bool) {
	if p.identity == nil {
		return Identity{}, false
	}
	return *p.identity, true
}

// Outbound yields the frames to write, in the order the hub issued them.
func (p *Peer) Outbound() <-chan chat.Message { return p.out }

// Notices yields error frames addressed to this connection only.
func (p *Peer) Notices() <-chan chat.ErrorFrame { return p.notices }

// Done is closed once the peer has been disconnected.
func (p *Peer) Done() <-chan struct{} { return p.done }

// deliver queues msg without blocking. While history is being replayed the
// message is held back and released by replay.
func (p *Peer) deliver(msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPeerClosed
	}
	if p.replaying {
		if len(p.pending) >= p.holdLimit {
			return ErrSendBufferFull
		}
		p.pending = append(p.pending, msg)
		return nil
	}
	return p.enqueueLocked(msg)
}

// replay queues history merged with the messages held while it was read.
// Held messages share the store order of history: those not in history are
// either older than its first entry or newer than its last one.
func (p *Peer) replay(history []chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.pending
	p.pending = nil
	p.replaying = false

	if p.closed {
		return ErrPeerClosed
	}

	for _, msg := range mergeReplay(history, pending) {
		if err := p.enqueueLocked(msg); err != nil {
			return err
		}
	}
	return nil
}

// mergeReplay orders held messages around history. Held messages up to the
// last history entry precede history; the rest follow it.
func mergeReplay(history, held []chat.Message) []chat.Message {
	if len(held) == 0 {
		return history
	}

	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		seen[msg.ID] = struct{}{}
	}

	split := 0
	if len(history) > 0 {
		last := history[len(history)-1].ID
		for i, msg := range held {
			if msg.ID == last {
				split = i + 1
				break
			}
		}
	}

	merged := make([]chat.Message, 0, len(history)+len(held))
	for _, msg := range held[:split] {
		if _, dup := seen[msg.ID]; !dup {
			merged = append(merged, msg)
		}
	}
	merged = append(merged, history...)
	for _, msg := range held[split:] {
		if _, dup := seen[msg.ID]; !dup {
			merged = append(merged, msg)
		}
	}
	return merged
}

func (p *Peer) enqueueLocked(msg chat.Message) error {
	select {
	case p.out <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// notify queues an error frame; it is dropped when the notice queue is full.
func (p *Peer) notify(reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.notices <- chat.ErrorFrame{Error: reason}:
		return true
	default:
		return false
	}
}

// close marks the peer closed and reports whether this call closed it.
func (p *Peer) close() bool {
	closed := false
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.pending = nil
		p.mu.Unlock()
		close(p.done)
		closed = true
	})
	return closed
}
