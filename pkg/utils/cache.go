package utils

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var globalCache *expirable.LRU[string, any]

// InitGlobalCache initializes the process-wide TTL cache.
func InitGlobalCache(size int, ttl time.Duration) {
	globalCache = expirable.NewLRU[string, any](size, nil, ttl)
}

// CacheGet reads a value from the global cache.
func CacheGet(key string) (any, bool) {
	if globalCache == nil {
		return nil, false
	}
	return globalCache.Get(key)
}

// CacheSet stores a value in the global cache.
func CacheSet(key string, value any) {
	if globalCache == nil {
		return
	}
	globalCache.Add(key, value)
}
