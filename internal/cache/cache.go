// Package cache stores retrieved search results and page text so reruns do
// not hit the same hosts again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Kind namespaces keys so a query and a URL never collide
type Kind string

const (
	KindQuery Kind = "query"
	KindPage  Kind = "page"
)

const keyPrefix = "meteora:v1:"

// Key generates a cache key for a query or page URL.
// Queries are case- and space-insensitive.
func Key(kind Kind, raw string) string {
	if kind == KindQuery {
		raw = strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	}
	hash := sha256.Sum256([]byte(string(kind) + "\x00" + raw))
	return keyPrefix + string(kind) + ":" + hex.EncodeToString(hash[:])
}

// GetJSON decodes a cached value into v. A corrupt entry is a miss.
func GetJSON(c Cache, key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, data, ttl)
}

// Nop is a Cache that never stores anything
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }

func (Nop) Set(string, []byte, time.Duration) error { return nil }

func (Nop) Delete(string) error { return nil }

func (Nop) Clear() error { return nil }
