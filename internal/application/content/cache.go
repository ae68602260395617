package content

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
)

// DefaultCacheTTL keeps extracted content for a working session
const DefaultCacheTTL = 6 * time.Hour

// Cache remembers extracted content by document bytes, so re-running a
// reconciliation over an unchanged corpus skips PDF parsing and OCR.
type Cache struct {
	store *cache.Cache
}

// NewCache creates a cache whose entries expire after ttl. A zero ttl uses
// DefaultCacheTTL; a negative ttl never expires entries.
func NewCache(ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	cleanup := 10 * time.Minute
	if ttl < 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &Cache{store: cache.New(ttl, cleanup)}
}

// Key identifies a document by the digest of its bytes
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns cached content for key
func (c *Cache) Get(key string) (documents.Content, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return documents.Content{}, false
	}
	content, ok := v.(documents.Content)
	return content, ok
}

// Set stores content under key with the default expiration
func (c *Cache) Set(key string, content documents.Content) {
	c.store.Set(key, content, cache.DefaultExpiration)
}

// Len reports the number of cached documents
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Flush drops every entry
func (c *Cache) Flush() {
	c.store.Flush()
}
