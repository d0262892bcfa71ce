package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddAndRemove(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	p1 := newPeer("alice", nil, 4, 0)
	p2 := newPeer("bob", nil, 4, 0)

	// When two connections register
	req.NoError(registry.Add(p1))
	req.NoError(registry.Add(p2))

	// Then both are tracked
	req.Equal(2, registry.Len())

	// And registering the same connection again fails
	req.ErrorIs(registry.Add(p1), ErrDuplicateConnection)

	// When one leaves twice
	req.True(registry.Remove(p1))
	req.False(registry.Remove(p1))

	// Then only the other is left
	req.Equal(1, registry.Len())
}

func TestRegistryForEachToleratesMutation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	peers := []*Peer{newPeer("a", nil, 4, 0), newPeer("b", nil, 4, 0), newPeer("c", nil, 4, 0)}
	for _, p := range peers {
		req.NoError(registry.Add(p))
	}

	visited := 0
	registry.ForEach(func(p *Peer) {
		visited++
		// joining and leaving mid-iteration must not deadlock or corrupt the walk
		registry.Remove(p)
		req.NoError(registry.Add(newPeer("late", nil, 4, 0)))
	})

	req.Equal(len(peers), visited)
	req.Equal(len(peers), registry.Len())
}
