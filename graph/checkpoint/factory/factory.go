// Package factory builds the checkpoint store selected by configuration.
package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/graph/checkpoint/mongostore"
	"github.com/BaSui01/agentgraph/graph/checkpoint/redisstore"
	"github.com/BaSui01/agentgraph/graph/checkpoint/sqlstore"
	"github.com/BaSui01/agentgraph/internal/database"
)

// Backend is an opened checkpoint store together with its resources.
type Backend struct {
	Store graph.ThreadStore
	// Kind is the configured backend name.
	Kind string
	// Pool is set for the database backend.
	Pool *database.PoolManager

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks connectivity. The memory backend always succeeds.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases connections held by the store.
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// New opens the backend named by cfg.Checkpoint.Backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind := cfg.Checkpoint.Backend
	if kind == "" {
		kind = config.BackendMemory
	}

	var (
		b   *Backend
		err error
	)
	switch kind {
	case config.BackendMemory:
		b = &Backend{Store: graph.NewMemorySaver()}
	case config.BackendRedis:
		b, err = openRedis(cfg, logger)
	case config.BackendDatabase:
		b, err = openDatabase(ctx, cfg, logger)
	case config.BackendMongo:
		b, err = openMongo(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s checkpoint backend: %w", kind, err)
	}
	b.Kind = kind

	logger.Info("checkpoint backend ready", zap.String("backend", kind))
	return b, nil
}

func openRedis(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	store, err := redisstore.New(redisstore.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		KeyPrefix:    cfg.Checkpoint.KeyPrefix,
		TTL:          cfg.Checkpoint.TTL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		TLS:          cfg.Redis.TLS,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store: store,
		ping:  store.Ping,
		close: func(context.Context) error { return store.Close() },
	}, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	pool, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store := sqlstore.New(pool.DB(), logger)
	if cfg.Checkpoint.AutoMigrate {
		if err := store.AutoMigrate(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}
	return &Backend{
		Store: store,
		Pool:  pool,
		ping:  pool.Ping,
		close: func(context.Context) error { return pool.Close() },
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	store, err := mongostore.New(ctx, mongostore.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		Collection:     cfg.Mongo.Collection,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store: store,
		ping:  store.Ping,
		close: store.Close,
	}, nil
}
