package plugins

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// ReplaySourceCache marks replays produced by a cache hit.
const ReplaySourceCache = "cache"

// CacheStore holds complete responses keyed by CacheKey. Implementations
// evict by recency and expire entries ttl after they were stored.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey is the model id followed by the params encoded as JSON. Map keys
// are sorted by encoding/json, so equal params give equal keys.
func CacheKey(modelID string, params map[string]any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	return modelID + ":" + string(b), nil
}

// MemoryStore is an in-process LRU with a fixed per-entry TTL. Reads
// refresh recency but never extend the TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryStore builds a store bounded to maxSize entries.
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.lru.Add(key, value)
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int { return s.lru.Len() }

// RedisStore shares the cache between processes. Entries expire through the
// server-side TTL; size-bounded eviction is left to the server's
// maxmemory-policy (allkeys-lru).
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores entries under prefix with the given ttl.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ailib:cache:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return s.prefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// cacheEntry is the per-request state of ResponseCaching.
type cacheEntry struct {
	key string
	buf strings.Builder
}

var cacheState = annotationKey(config.PluginResponseCaching, "state")

// ResponseCaching replays complete responses for repeated requests.
type ResponseCaching struct {
	store CacheStore
	log   zerolog.Logger
}

// NewResponseCaching wraps store.
func NewResponseCaching(store CacheStore, log zerolog.Logger) *ResponseCaching {
	return &ResponseCaching{store: store, log: log}
}

func (p *ResponseCaching) Name() string { return config.PluginResponseCaching }

// TransformRequest looks the request up and attaches a replay on a hit.
// It never invokes or skips the model itself.
func (p *ResponseCaching) TransformRequest(ctx context.Context, _ model.Model, req *types.Request) (*types.Request, error) {
	key, err := CacheKey(req.Target(), req.Params)
	if err != nil {
		return nil, err
	}
	req.Annotate(cacheState, &cacheEntry{key: key})
	if _, ok := req.Replay(); ok {
		return req, nil
	}
	v, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		p.log.Debug().Str("request_id", req.ID).Str("model", req.Target()).Msg("cache hit")
		req.SetReplay(types.Replay{Source: ReplaySourceCache, Fragments: []string{v}})
	}
	return req, nil
}

// TransformResponse accumulates the stream and stores it once the terminal
// chunk arrives. Replays of cached content are not stored again.
func (p *ResponseCaching) TransformResponse(ctx context.Context, _ model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
	v, ok := req.Annotation(cacheState)
	if !ok {
		return c, nil
	}
	e := v.(*cacheEntry)
	e.buf.WriteString(c.Content)
	if !c.IsComplete {
		return c, nil
	}
	req.DeleteAnnotation(cacheState)
	if rp, ok := req.Replay(); ok && rp.Source == ReplaySourceCache {
		return c, nil
	}
	if err := p.store.Set(ctx, e.key, e.buf.String()); err != nil {
		return c, err
	}
	return c, nil
}
