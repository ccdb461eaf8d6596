package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStateNotFound  = errors.New("session state not found")
	ErrInvalidSession = errors.New("session id is empty")
)

const (
	defaultStoreKeyPrefix = "concierge:session:"
	defaultStoreTTL       = 24 * time.Hour
)

// Store persists one SharedState per session between turns.
type Store interface {
	Load(ctx context.Context, sessionID string) (*SharedState, error)
	Save(ctx context.Context, st *SharedState) error
	Delete(ctx context.Context, sessionID string) error
}

// keyspace is where a Redis-backed store keeps sessions and for how long.
type keyspace struct {
	prefix string
	ttl    time.Duration
}

// StoreOption customizes a Redis-backed store.
type StoreOption func(*keyspace)

func WithKeyPrefix(prefix string) StoreOption {
	return func(k *keyspace) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			k.prefix = trimmed
		}
	}
}

// WithTTL sets how long a session outlives its last save. Zero keeps it
// forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(k *keyspace) {
		k.ttl = ttl
	}
}

func newKeyspace(opts []StoreOption) (keyspace, error) {
	k := keyspace{prefix: defaultStoreKeyPrefix, ttl: defaultStoreTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&k)
		}
	}
	if k.ttl < 0 {
		return keyspace{}, fmt.Errorf("session ttl must be >= 0, got %s", k.ttl)
	}
	return k, nil
}

func (k keyspace) key(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrInvalidSession
	}
	if k.prefix == "" {
		return defaultStoreKeyPrefix + sessionID, nil
	}
	return k.prefix + sessionID, nil
}

func encodeState(st *SharedState) ([]byte, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	return payload, nil
}

func decodeState(payload []byte) (*SharedState, error) {
	var st SharedState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("stored session is invalid: %w", err)
	}
	return &st, nil
}
