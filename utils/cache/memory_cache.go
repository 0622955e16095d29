/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache holds the in-process caches used by components: a ttl cache
// for access tokens and an lru cache of started producers.
package cache

import (
	"sync"
	"time"
)

// MemoryCache is an in-memory key/value store with per entry expiry.
// Expired entries are dropped lazily on access.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

type item struct {
	value interface{}
	// zero means the item never expires
	expiration time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]item), now: time.Now}
}

// Set stores value for ttl. A ttl <= 0 never expires.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	it := item{value: value}
	if ttl > 0 {
		it.expiration = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
}

// Get returns the live value for key.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !it.expiration.IsZero() && !c.now().Before(it.expiration) {
		c.Delete(key)
		return nil, false
	}
	return it.value, true
}

// GetOrLoad returns the cached value or calls load and caches its result for
// the returned ttl. Concurrent misses for the same key may load twice.
func (c *MemoryCache) GetOrLoad(key string, load func() (interface{}, time.Duration, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, ttl, err := load()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
