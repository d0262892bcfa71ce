package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecentReturnsNewestOldestFirst(t *testing.T) {
	req := require.New(t)
	store, _ := openTempStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := store.Append(ctx, chat.Message{UserID: "u1", Username: "alice", Text: fmt.Sprintf("m%d", i), Timestamp: int64(1000 + i)})
		req.NoError(err)
	}

	recent, err := store.Recent(ctx, 50)
	req.NoError(err)
	req.Len(recent, 50)
	req.Equal("m10", recent[0].Text)
	req.Equal(int64(1010), recent[0].Timestamp)
	req.Equal("m59", recent[49].Text)

	count, err := store.Count(ctx)
	req.NoError(err)
	req.Equal(60, count)
}

func TestReopenKeepsMessagesAndSkipsAppliedMigrations(t *testing.T) {
	req := require.New(t)
	store, path := openTempStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, chat.Message{UserID: "u1", Username: "alice", Text: "hello", Timestamp: 1})
	req.NoError(err)
	req.NoError(store.Close())

	reopened, err := Open(path)
	req.NoError(err)
	defer reopened.Close()

	recent, err := reopened.Recent(ctx, 50)
	req.NoError(err)
	req.Len(recent, 1)
	req.Equal(chat.Message{ID: id, UserID: "u1", Username: "alice", Text: "hello", Timestamp: 1}, recent[0])
}
