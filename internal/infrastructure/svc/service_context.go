package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"weightwire/internal/application/heartbeat"
	"weightwire/internal/application/publisher"
	"weightwire/internal/application/reader"
	"weightwire/internal/application/registry"
	"weightwire/internal/domain/keys"
	"weightwire/internal/infrastructure/config"
	"weightwire/internal/infrastructure/storage"
	"weightwire/internal/infrastructure/storage/postgres"
	"weightwire/internal/infrastructure/storage/redisstore"
	"weightwire/internal/infrastructure/storage/sqlite"
)

// ServiceContext wires the store and the application services for one
// strategy. It is the single initialization entry point of the CLI.
type ServiceContext struct {
	Config *config.Config
	Keys   keys.Schema
	Store  *redisstore.Store

	Publisher *publisher.Publisher
	Reader    *reader.Reader
	Registry  *registry.Registry
	Reporter  *heartbeat.Reporter

	archiver storage.Archiver
	closers  []func() error
}

func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	rdb, err := redisstore.NewClient(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	store := redisstore.New(rdb)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ks := keys.New(cfg.Redis.KeyPrefix, cfg.Redis.HeartbeatPrefix, cfg.Strategy.Name)

	s := &ServiceContext{
		Config:    cfg,
		Keys:      ks,
		Store:     store,
		Publisher: publisher.New(store, ks),
		Reader:    reader.New(store, ks),
		Registry:  registry.New(store, ks),
		Reporter:  heartbeat.New(store, ks),
	}
	s.Publisher.BatchSize = cfg.Publish.BatchSize
	s.closers = append(s.closers, store.Close)

	switch cfg.Archive.Driver {
	case "sqlite":
		repo, err := sqlite.New(cfg.Archive.SqlitePath)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("sqlite archive: %w", err)
		}
		s.archiver = repo
		s.closers = append(s.closers, repo.Close)
	case "postgres":
		repo, err := postgres.New(cfg.Archive.PostgresDSN)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres archive: %w", err)
		}
		s.archiver = repo
		s.closers = append(s.closers, repo.Close)
	}

	log.Info().Str("strategy", cfg.Strategy.Name).Str("prefix", cfg.Redis.KeyPrefix).
		Str("archive", cfg.Archive.Driver).Msg("service context ready")
	return s, nil
}

// Archiver returns the configured archive backend, or ErrNoArchive.
func (s *ServiceContext) Archiver() (storage.Archiver, error) {
	if s.archiver == nil {
		return nil, ErrNoArchive
	}
	return s.archiver, nil
}

// StartHeartbeat launches the liveness reporter when the config enables it.
// The reporter stops with ctx.
func (s *ServiceContext) StartHeartbeat(ctx context.Context) {
	if !s.Config.Publish.Heartbeat {
		return
	}
	go s.Reporter.Run(ctx)
	log.Info().Dur("interval", s.Reporter.Interval).Msg("liveness reporter started")
}

// Close releases resources in reverse initialization order.
func (s *ServiceContext) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
