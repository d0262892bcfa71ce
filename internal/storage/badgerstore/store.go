// Package badgerstore persists chat messages in an embedded Badger database.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

var (
	messagePrefix = []byte("msg:")
	sequenceKey   = []byte("seq:messages")
)

// Store keeps messages under "msg:{sequence}" keys. The sequence is zero
// padded to 20 digits so lexicographic key order is insertion order.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if log == nil {
		log = slog.Default()
	}

	options := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if log.Enabled(context.Background(), slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.INFO)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lease message sequence: %w", err)
	}

	return &Store{db: db, seq: seq, log: log.With("component", "store", "driver", "badger")}, nil
}

// Close returns unused sequence numbers and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		s.log.Warn("release message sequence", "err", err)
	}
	return s.db.Close()
}

// Append stores msg under the next sequence number.
func (s *Store) Append(ctx context.Context, msg chat.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n, err := s.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next message sequence: %w", err)
	}

	msg.ID = uuid.NewString()
	value, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(n), value)
	})
	if err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	return msg.ID, nil
}

// Recent walks the keys backwards from the newest and returns up to limit
// messages, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	newestFirst := make([]chat.Message, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = messagePrefix
		it := txn.NewIterator(options)
		defer it.Close()

		// 0xFF sorts after every digit, so the seek lands on the newest key
		seekKey := append(append([]byte{}, messagePrefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(messagePrefix); it.Next() {
			if len(newestFirst) == limit {
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var msg chat.Message
			if err := json.Unmarshal(value, &msg); err != nil {
				return fmt.Errorf("decode message %s: %w", it.Item().Key(), err)
			}
			newestFirst = append(newestFirst, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	messages := make([]chat.Message, len(newestFirst))
	for i, msg := range newestFirst {
		messages[len(newestFirst)-1-i] = msg
	}
	return messages, nil
}

// Count walks the message keys without loading values.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = messagePrefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(messagePrefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func messageKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, n))
}
