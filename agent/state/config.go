package state

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	StoreBackendMemory  = "memory"
	StoreBackendRedis   = "redis"
	StoreBackendUpstash = "upstash"
)

// StoreConfig is loaded with the STATE prefix and picks the session store.
type StoreConfig struct {
	Backend   string        `envconfig:"BACKEND" split_words:"true" default:"memory"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"concierge:session:"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

// OpenStore builds the configured store. The redis and upstash settings are
// only read for their backend. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig, redisCfg RedisConfig, upstashCfg UpstashRedisConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", StoreBackendMemory:
		return NewMemoryStore(), noop, nil
	case StoreBackendRedis:
		rdb, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, noop, err
		}
		st, err := NewRedisStore(rdb, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return st, rdb.Close, nil
	case StoreBackendUpstash:
		st, err := NewUpstashRedisStore(upstashCfg, WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL))
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
