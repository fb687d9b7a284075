// Package registry keeps the catalog of uploaded datasets in Redis.
//
// Redis Key Structure:
//
//	flowhawk:dataset:{id}   - JSON encoded models.Dataset
//	flowhawk:datasets       - Sorted set of dataset ids scored by creation time
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

var ErrDatasetNotFound = errors.New("dataset not found")

const (
	keyPrefix = "flowhawk:dataset:"
	indexKey  = "flowhawk:datasets"

	// DefaultCacheSize bounds the read cache when none is configured.
	DefaultCacheSize = 256
)

// NewClient connects to redisURL and verifies the connection.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Registry stores dataset records. Reads go through an LRU cache; writes
// update Redis first and the cache second.
type Registry struct {
	redis *redis.Client
	cache *lru.Cache[string, models.Dataset]
	now   func() time.Time
}

// New returns a Registry over client with a read cache of cacheSize entries.
func New(client *redis.Client, cacheSize int) (*Registry, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, models.Dataset](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}
	return &Registry{redis: client, cache: cache, now: time.Now}, nil
}

// Register stores d, assigning an ID and CreatedAt when unset.
func (r *Registry) Register(ctx context.Context, d *models.Dataset) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now().UTC()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, keyPrefix+d.ID, data, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(d.CreatedAt.UnixNano()), Member: d.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register dataset: %w", err)
	}

	r.cache.Add(d.ID, *d)
	return nil
}

// Get returns the dataset with id or ErrDatasetNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*models.Dataset, error) {
	if d, ok := r.cache.Get(id); ok {
		return &d, nil
	}

	data, err := r.redis.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	var d models.Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	r.cache.Add(id, d)
	return &d, nil
}

// List returns every dataset, newest first.
func (r *Registry) List(ctx context.Context) ([]*models.Dataset, error) {
	ids, err := r.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Dataset{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}

	out := make([]*models.Dataset, 0, len(values))
	for _, v := range values {
		// Index entries whose record vanished are skipped.
		s, ok := v.(string)
		if !ok {
			continue
		}
		var d models.Dataset
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
		}
		out = append(out, &d)
	}
	return out, nil
}

// Delete removes the dataset record. The file on disk is left to the caller.
func (r *Registry) Delete(ctx context.Context, id string) error {
	pipe := r.redis.TxPipeline()
	del := pipe.Del(ctx, keyPrefix+id)
	pipe.ZRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	r.cache.Remove(id)

	if del.Val() == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Registry) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *Registry) Close() error {
	return r.redis.Close()
}
