package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/parley/domain/variable"
)

// VariableStore is a Redis-backed implementation of variable.Store. Values
// are JSON documents keyed by scope key and name; an optional TTL derived
// from the variable's freshness policy lets Redis expire stale values on
// its own.
type VariableStore struct {
	client    *redis.Client
	keyPrefix string

	// ttls maps variable names to expirations, populated from the agent's
	// variable definitions.
	ttls map[string]time.Duration
}

// NewVariableStore connects to Redis and verifies the connection.
func NewVariableStore(cfg Config, opts ...ConfigOption) (*VariableStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return &VariableStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttls:      make(map[string]time.Duration),
	}, nil
}

// NewVariableStoreFromClient wraps an existing client.
func NewVariableStoreFromClient(client *redis.Client, keyPrefix string) *VariableStore {
	return &VariableStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttls:      make(map[string]time.Duration),
	}
}

// SetExpirations derives per-variable TTLs from the given definitions.
// A variable with a MaxAge expires from Redis when it would go stale.
func (s *VariableStore) SetExpirations(defs []variable.Definition) {
	for _, def := range defs {
		if def.MaxAge > 0 {
			s.ttls[def.Name] = def.MaxAge
		}
	}
}

func (s *VariableStore) key(scopeKey, name string) string {
	return s.keyPrefix + "var:" + scopeKey + ":" + name
}

func (s *VariableStore) scopePattern(scopeKey string) string {
	return s.keyPrefix + "var:" + scopeKey + ":*"
}

// Get retrieves a value.
func (s *VariableStore) Get(ctx context.Context, name, scopeKey string) (variable.Value, error) {
	if err := ctx.Err(); err != nil {
		return variable.Value{}, err
	}

	data, err := s.client.Get(ctx, s.key(scopeKey, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return variable.Value{}, variable.ErrNotFound
	}
	if err != nil {
		return variable.Value{}, s.wrapError(err)
	}

	var v variable.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return variable.Value{}, err
	}
	return v, nil
}

// Put writes a value, applying the variable's TTL when one is configured.
func (s *VariableStore) Put(ctx context.Context, v variable.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.Name == "" {
		return variable.ErrEmptyName
	}
	if v.LastRefreshed.IsZero() {
		v.LastRefreshed = time.Now()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ttl := s.ttls[v.Name] // zero means no expiration
	if err := s.client.Set(ctx, s.key(v.ScopeKey, v.Name), data, ttl).Err(); err != nil {
		return s.wrapError(err)
	}
	return nil
}

// Delete removes a value.
func (s *VariableStore) Delete(ctx context.Context, name, scopeKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(scopeKey, name)).Err(); err != nil {
		return s.wrapError(err)
	}
	return nil
}

// List returns all values for a scope key.
func (s *VariableStore) List(ctx context.Context, scopeKey string) ([]variable.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var values []variable.Value
	iter := s.client.Scan(ctx, 0, s.scopePattern(scopeKey), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, s.wrapError(err)
		}
		var v variable.Value
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		values = append(values, v)
	}
	if err := iter.Err(); err != nil {
		return nil, s.wrapError(err)
	}
	return values, nil
}

// Ping verifies the connection.
func (s *VariableStore) Ping(ctx context.Context) error {
	return s.wrapError(s.client.Ping(ctx).Err())
}

// Close closes the client.
func (s *VariableStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *VariableStore) Client() *redis.Client {
	return s.client
}

func (s *VariableStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ variable.Store = (*VariableStore)(nil)
