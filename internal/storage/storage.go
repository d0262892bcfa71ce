// Package storage opens the message store selected by configuration.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reactshop/community-chat/backend/internal/config"
	"github.com/reactshop/community-chat/backend/internal/model/chat"
	"github.com/reactshop/community-chat/backend/internal/storage/badgerstore"
	"github.com/reactshop/community-chat/backend/internal/storage/mongostore"
	"github.com/reactshop/community-chat/backend/internal/storage/sqlitestore"
)

// Backend is a message store holding resources that must be released.
type Backend interface {
	chat.Store
	io.Closer
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	base := log
	log = log.With("component", "store", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, messages are lost on restart")
		return chat.NewMemoryStore(nil), nil
	case config.DriverBadger:
		store, err := badgerstore.Open(cfg.BadgerPath, base)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", "path", cfg.BadgerPath)
		return store, nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", "path", cfg.SQLitePath)
		return store, nil
	case config.DriverMongo:
		store, err := mongostore.Open(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", "database", cfg.MongoDatabase)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}
