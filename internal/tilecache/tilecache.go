// Package tilecache keeps rendered tile images keyed by layer, revision and
// symbology fingerprint. Invalidation is revision-based: bumping a layer's
// revision makes every cached tile of the old revision unreachable, so no
// prefix scans are needed on either backend.
package tilecache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Recorder receives hit/miss events. A nil Recorder disables accounting.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

// Key builds the canonical cache key for one tile. The symbology
// fingerprint is hashed so arbitrarily long style definitions stay inside
// key length limits.
func Key(layer string, revision uint64, z, x, y int, fingerprint string) string {
	sum := xxhash.Sum64String(fingerprint)
	return fmt.Sprintf("%s:r%d:%d:%d:%d:s=%016x", sanitizeLayer(layer), revision, z, x, y, sum)
}

func sanitizeLayer(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || unicode.IsDigit(r)
}

// Revisions tracks the current revision of every layer. The zero value is
// ready to use.
type Revisions struct {
	mu   sync.RWMutex
	revs map[string]uint64
}

func (r *Revisions) Current(layer string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revs[layer]
}

// Bump invalidates all cached tiles of a layer and returns the new revision.
func (r *Revisions) Bump(layer string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revs == nil {
		r.revs = map[string]uint64{}
	}
	r.revs[layer]++
	return r.revs[layer]
}

// Store is a tile byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
}

// LRUStore keeps encoded tiles in process memory.
type LRUStore struct {
	lru *lru.Cache[string, []byte]
	rec Recorder
}

func NewLRU(size int, rec Recorder) (*LRUStore, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{lru: c, rec: rec}, nil
}

func (s *LRUStore) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := s.lru.Get(key)
	if s.rec != nil {
		if ok {
			s.rec.CacheHit()
		} else {
			s.rec.CacheMiss()
		}
	}
	return v, ok
}

func (s *LRUStore) Set(_ context.Context, key string, val []byte) {
	s.lru.Add(key, val)
}

// Len reports the number of resident entries.
func (s *LRUStore) Len() int { return s.lru.Len() }

// RedisStore shares rendered tiles across processes. Entries expire by TTL
// since revision-bumped keys are never read again.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	rec Recorder
}

func NewRedis(rdb *redis.Client, ttl time.Duration, rec Recorder) *RedisStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisStore{rdb: rdb, ttl: ttl, rec: rec}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	ok := err == nil
	if s.rec != nil {
		if ok {
			s.rec.CacheHit()
		} else {
			s.rec.CacheMiss()
		}
	}
	if !ok {
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte) {
	// best effort; a failed write only costs a future re-render
	s.rdb.Set(ctx, key, val, s.ttl)
}

// Tiered reads through an in-process store before a shared one and
// back-fills both on miss.
type Tiered struct {
	Local  Store
	Shared Store
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := t.Local.Get(ctx, key); ok {
		return v, true
	}
	if t.Shared == nil {
		return nil, false
	}
	v, ok := t.Shared.Get(ctx, key)
	if ok {
		t.Local.Set(ctx, key, v)
	}
	return v, ok
}

func (t *Tiered) Set(ctx context.Context, key string, val []byte) {
	t.Local.Set(ctx, key, val)
	if t.Shared != nil {
		t.Shared.Set(ctx, key, val)
	}
}
