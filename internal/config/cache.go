package config

import (
    "os"
    "strconv"
    "time"
)

// CatalogCacheConfig defines settings for the Redis seat catalog cache.
// When Enabled is false or no Redis client is configured, the catalog is
// read straight from storage.  TTL defines the lifetime of cache entries
// and Prefix namespaces the keys.
type CatalogCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadCatalogCacheConfig reads environment variables to build a
// CatalogCacheConfig.  Defaults are used when variables are not set.
func LoadCatalogCacheConfig() CatalogCacheConfig {
    return CatalogCacheConfig{
        Enabled: getenv("CACHE_ENABLED", "true") == "true",
        TTL:     parseDur(getenv("CACHE_TTL", "5m")),
        Prefix:  getenv("CACHE_PREFIX", "catalog"),
    }
}

// Helper functions reused from redis.go
func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func atoi(s string) int {
    i, _ := strconv.Atoi(s)
    return i
}

func parseDur(s string) time.Duration {
    d, err := time.ParseDuration(s)
    if err != nil {
        return time.Minute
    }
    return d
}
