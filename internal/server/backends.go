package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/boltdb"
	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/Sakib25800/framer-salesforce-api/cache/redis"
	"github.com/Sakib25800/framer-salesforce-api/config"
	"github.com/Sakib25800/framer-salesforce-api/mongodb"
	"github.com/rs/zerolog/log"
)

const boltCleanupInterval = time.Minute

// OpenBackend opens the store backend named by kind. The ephemeral and
// durable stores may share a backend kind; each call opens its own handle,
// except bolt, whose file lock allows a single handle per path.
func OpenBackend(ctx context.Context, cfg *config.ServerConfig, kind string) (cache.Backend, error) {
	switch kind {
	case config.StoreMemory, "":
		return cache.NewMemoryBackend(), nil

	case config.StoreRedis:
		backend, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}

		return backend, nil

	case config.StoreMongo:
		if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			return nil, err
		}

		backend, err := mongodb.NewKeyValueStore(ctx, mongodb.GetDB(), cfg.MongoCollection)
		if err != nil {
			return nil, err
		}

		return backend, nil

	case config.StoreBolt:
		backend, err := boltdb.Open(cfg.BoltPath, boltCleanupInterval)
		if err != nil {
			return nil, err
		}

		return backend, nil

	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

// Backends are the two store backends the server runs on.
type Backends struct {
	Ephemeral cache.Backend
	Durable   cache.Backend
}

// OpenBackends opens the ephemeral and durable backends. When both use bolt
// they share one handle.
func OpenBackends(ctx context.Context, cfg *config.ServerConfig) (*Backends, error) {
	ephemeral, err := OpenBackend(ctx, cfg, cfg.EphemeralStore)
	if err != nil {
		return nil, fmt.Errorf("ephemeral store: %w", err)
	}

	if cfg.DurableStore == config.StoreBolt && cfg.EphemeralStore == config.StoreBolt {
		return &Backends{Ephemeral: ephemeral, Durable: ephemeral}, nil
	}

	durable, err := OpenBackend(ctx, cfg, cfg.DurableStore)
	if err != nil {
		_ = ephemeral.Close()
		return nil, fmt.Errorf("durable store: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("ephemeral", cfg.EphemeralStore).
		Str("durable", cfg.DurableStore).
		Msg("Store backends opened")

	return &Backends{Ephemeral: ephemeral, Durable: durable}, nil
}

// Ping checks every backend that reports connection health. Memory backends
// have nothing to check.
func (b *Backends) Ping(ctx context.Context) error {
	if err := ping(ctx, b.Ephemeral); err != nil {
		return fmt.Errorf("ephemeral store: %w", err)
	}

	if b.Durable != b.Ephemeral {
		if err := ping(ctx, b.Durable); err != nil {
			return fmt.Errorf("durable store: %w", err)
		}
	}

	return nil
}

func ping(ctx context.Context, backend cache.Backend) error {
	pinger, ok := backend.(cache.Pinger)
	if !ok {
		return nil
	}

	return pinger.Ping(ctx)
}

// Close closes both backends once each.
func (b *Backends) Close(ctx context.Context) {
	if err := b.Ephemeral.Close(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Failed to close ephemeral store")
	}

	if b.Durable != b.Ephemeral {
		if err := b.Durable.Close(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to close durable store")
		}
	}

	mongodb.CloseMongoDB(ctx)
}
