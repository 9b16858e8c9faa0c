package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/yarelay/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yarelay/internal/adapter/driven/persistence/mongo"
	"github.com/Wyydra/yarelay/internal/adapter/driven/persistence/sqlite"
	"github.com/Wyydra/yarelay/internal/config"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/rs/zerolog/log"
)

// store bundles the repositories of the selected backend.
type store struct {
	users    port.UserRepository
	messages port.MessageRepository
	ping     func(ctx context.Context) error
	close    func()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &store{
			users:    memory.NewUserRepository(),
			messages: memory.NewMessageRepository(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", db.Path()).Msg("SQLite store opened")
		return &store{
			users:    sqlite.NewUserRepository(db),
			messages: sqlite.NewMessageRepository(db),
			ping:     db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close SQLite store")
				}
			},
		}, nil

	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("MongoDB store connected")
		return &store{
			users:    mongo.NewUserRepository(s),
			messages: mongo.NewMessageRepository(s),
			ping:     s.Ping,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.Close(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to close MongoDB store")
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
