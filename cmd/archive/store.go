package main

import (
	"context"
	"fmt"

	"github.com/warp/archive-engine/archive"
	archivestore "github.com/warp/archive-engine/archive/store"
	"github.com/warp/archive-engine/config"
	"github.com/warp/archive-engine/store/postgres"
	"github.com/warp/archive-engine/store/sqlite"
)

// openedStore is what every driver gives back.
type openedStore interface {
	archive.TxStore
	Ping(ctx context.Context) error
	Close() error
}

// memoryStore adapts the in-memory store for the dev driver.
type memoryStore struct {
	*archivestore.Memory
}

func (memoryStore) Ping(context.Context) error { return nil }
func (memoryStore) Close() error               { return nil }

func openStore(ctx context.Context, cfg config.StoreConfig) (openedStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.DSN)
	case config.DriverPostgres:
		return postgres.Connect(ctx, cfg.DSN)
	case config.DriverMemory:
		return memoryStore{archivestore.NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
