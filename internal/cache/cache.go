package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

const keyPrefix = "product_scraper:result:"

// Key derives a cache key from a product URL. Scheme and host are lowercased
// and the fragment is dropped so trivially different spellings share an entry.
func Key(rawURL string) string {
	normalized := strings.TrimSpace(rawURL)
	if u, err := url.Parse(normalized); err == nil {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		u.RawFragment = ""
		normalized = u.String()
	}
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// RedisClient is the subset of go-redis used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores extraction results as JSON with a TTL.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	data, err := c.client.Get(ctx, Key(rawURL)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cached result: %w", err)
	}

	var product models.ScrapedProduct
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &product, nil
}

func (c *RedisCache) Set(ctx context.Context, rawURL string, product *models.ScrapedProduct) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if err := c.client.Set(ctx, Key(rawURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

type memoryItem struct {
	data       []byte
	expiration time.Time
}

// MemoryCache is an in-process TTL cache, used when Redis is not configured.
// Entries are stored as JSON so callers never share a record.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryItem
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryItem),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	c.mu.RLock()
	item, ok := c.data[Key(rawURL)]
	c.mu.RUnlock()

	if !ok || c.now().After(item.expiration) {
		return nil, ErrMiss
	}

	var product models.ScrapedProduct
	if err := json.Unmarshal(item.data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &product, nil
}

func (c *MemoryCache) Set(ctx context.Context, rawURL string, product *models.ScrapedProduct) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[Key(rawURL)] = memoryItem{data: data, expiration: c.now().Add(c.ttl)}
	return nil
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.data {
		if now.After(item.expiration) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}
