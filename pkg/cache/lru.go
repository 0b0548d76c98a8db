package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type lruEntry struct {
	value     interface{}
	expiresAt time.Time
}

// lruCache 基于 golang-lru 的本地缓存，容量满时淘汰最久未使用的键
type lruCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, lruEntry]
	ttl time.Duration
}

// NewLocalCache 创建本地 LRU 缓存
func NewLocalCache(config LocalConfig) Cache {
	config = normalizeLocal(config)
	return &lruCache{
		lru: expirable.NewLRU[string, lruEntry](config.MaxSize, nil, config.DefaultExpiration),
		ttl: config.DefaultExpiration,
	}
}

func (lc *lruCache) lookup(key string) (lruEntry, bool) {
	e, ok := lc.lru.Get(key)
	if !ok {
		return lruEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		lc.lru.Remove(key)
		return lruEntry{}, false
	}
	return e, true
}

func (lc *lruCache) entry(value interface{}, expiration time.Duration) lruEntry {
	// LRU 自身的 TTL 是上限，更短的过期时间在读取时判断
	if expiration <= 0 || expiration >= lc.ttl {
		return lruEntry{value: value}
	}
	return lruEntry{value: value, expiresAt: time.Now().Add(expiration)}
}

func (lc *lruCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	e, ok := lc.lookup(key)
	return e.value, ok
}

func (lc *lruCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lru.Add(key, lc.entry(value, expiration))
	return nil
}

func (lc *lruCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if _, ok := lc.lookup(key); ok {
		return false, nil
	}
	lc.lru.Add(key, lc.entry(value, expiration))
	return true, nil
}

func (lc *lruCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lru.Remove(key)
	return nil
}

func (lc *lruCache) Exists(ctx context.Context, key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	_, ok := lc.lookup(key)
	return ok
}

func (lc *lruCache) Clear(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lru.Purge()
	return nil
}

func (lc *lruCache) Increment(ctx context.Context, key string, value int64) (int64, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	e, ok := lc.lookup(key)
	if !ok {
		lc.lru.Add(key, lruEntry{value: value})
		return value, nil
	}
	cur, isInt := e.value.(int64)
	if !isInt {
		return 0, fmt.Errorf("value of %q is %T, not int64", key, e.value)
	}
	e.value = cur + value
	lc.lru.Add(key, e)
	return cur + value, nil
}

func (lc *lruCache) Close() error { return nil }
