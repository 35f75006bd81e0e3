// Package store opens the core.Store backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/store/memstore"
	"github.com/JonMunkholm/rosterimport/internal/store/mongostore"
	"github.com/JonMunkholm/rosterimport/internal/store/pgstore"
)

// Open connects to the configured backend. The caller owns the returned store
// and must Close it.
func Open(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, mongostore.Config{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Collection:     cfg.Collection,
			MaxConns:       uint64(cfg.MaxConns),
			MinConns:       uint64(cfg.MinConns),
			ConnectTimeout: cfg.ConnectTimeout,
			MaxConnIdle:    cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to store", "driver", config.DriverMongo,
			"database", cfg.MongoDatabase, "collection", cfg.Collection)
		return s, nil

	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, pgstore.Config{
			URL:            cfg.PostgresURL,
			Table:          cfg.Collection,
			MaxConns:       int32(cfg.MaxConns),
			MinConns:       int32(cfg.MinConns),
			MaxConnIdle:    cfg.MaxConnIdleTime,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to store", "driver", config.DriverPostgres, "table", cfg.Collection)
		return s, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; records are lost on exit")
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
