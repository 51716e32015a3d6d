// Package cache хранит результаты обхода сайтов между запусками
// пайплайна: повторный запрос на тот же сайт не тратит бюджет
// времени на crawling.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaiso/voxline/internal/services"
)

// ErrMiss — запись не найдена или истекла.
var ErrMiss = errors.New("cache miss")

// ContentCache — кэш результатов обхода по URL сайта.
type ContentCache interface {
	Get(ctx context.Context, url string) (*services.CrawlResult, error)
	Set(ctx context.Context, url string, result *services.CrawlResult) error
	Delete(ctx context.Context, url string) error
}

// MemoryCache — процессный кэш контента. Используется, когда
// Redis не сконфигурирован.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	result    *services.CrawlResult
	expiresAt time.Time
}

// NewMemoryCache создаёт процессный кэш с заданным TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get возвращает запись, если она не истекла.
func (c *MemoryCache) Get(ctx context.Context, url string) (*services.CrawlResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrMiss
	}
	return entry.result, nil
}

// Set сохраняет запись с TTL кэша.
func (c *MemoryCache) Set(ctx context.Context, url string, result *services.CrawlResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = memoryEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

// Delete убирает запись.
func (c *MemoryCache) Delete(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, url)
	return nil
}
