// Package app assembles the runtime pieces a command needs from config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"moveline/internal/ai"
	"moveline/internal/config"
	"moveline/internal/session"
	"moveline/internal/store"
)

// Runtime holds the configured store, snapshot cache and parser.
type Runtime struct {
	Config *config.Config
	Log    *zap.Logger
	Store  store.Estimates
	Cache  session.Cache
	Parser ai.Parser

	redis *redis.Client
}

// OpenStore connects the configured estimate store and applies migrations.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Estimates, error) {
	switch cfg.Driver {
	case "", "sqlite":
		st, err := store.OpenSQLite(ctx, cfg.Workspace)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		return st, nil
	case "postgres":
		st, err := store.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres store")
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Open builds a runtime. Without ai, parsing is disabled regardless of
// the configured provider.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, withAI bool) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Log: log, Store: st, Parser: ai.Disabled{}}
	if cfg.Cache.RedisURL != "" {
		client, err := store.ConnectRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "connect redis cache")
		}
		rt.redis = client
		rt.Cache = store.NewSnapshotCache(client, cfg.Cache.TTL)
	}
	if withAI {
		p, err := ai.New(ctx, cfg.AI, log)
		if err != nil {
			rt.Close()
			return nil, eris.Wrap(err, "init parser")
		}
		rt.Parser = p
	}
	log.Debug("runtime ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis_cache", rt.Cache != nil),
		zap.String("ai_provider", cfg.AI.Provider))
	return rt, nil
}

// Sessions returns a session manager over the runtime.
func (r *Runtime) Sessions(saved session.SavedFunc) *session.Manager {
	return session.NewManager(session.Options{
		Parser: r.Parser,
		Store:  r.Store,
		Cache:  r.Cache,
		Log:    r.Log,
		Saved:  saved,
	})
}

func (r *Runtime) Close() error {
	var errs []error
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}
