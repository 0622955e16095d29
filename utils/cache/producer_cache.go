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

package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rulego/rulego-connectors/api/types"
)

// DefaultProducerCacheSize is used when the configured size is 0.
const DefaultProducerCacheSize = 1000

// ProducerFactory creates a started producer for uri.
type ProducerFactory func(uri string) (types.Producer, error)

// ProducerCache keeps started producers by uri. Acquired producers are
// reference counted: an evicted producer is stopped once its last user
// releases it. A negative size disables caching: every Acquire creates a
// producer that is stopped on release.
type ProducerCache struct {
	factory ProducerFactory
	logger  types.Logger
	lock    sync.Mutex
	cache   *lru.Cache[string, *cachedProducer]
	// evicted entries without users, stopped once lock is released
	stale []*cachedProducer
}

type cachedProducer struct {
	uri      string
	producer types.Producer
	refs     int
	evicted  bool
}

func NewProducerCache(size int, factory ProducerFactory, logger types.Logger) (*ProducerCache, error) {
	c := &ProducerCache{factory: factory, logger: logger}
	if size < 0 {
		return c, nil
	}
	if size == 0 {
		size = DefaultProducerCacheSize
	}
	// the callback runs under c.lock: every cache mutation holds it
	cache, err := lru.NewWithEvict[string, *cachedProducer](size, func(_ string, entry *cachedProducer) {
		entry.evicted = true
		if entry.refs == 0 {
			c.stale = append(c.stale, entry)
		}
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Acquire returns a producer for uri. release must be called once the
// producer is no longer used by the caller.
func (c *ProducerCache) Acquire(uri string) (producer types.Producer, release func(), err error) {
	if c.cache == nil {
		if producer, err = c.factory(uri); err != nil {
			return nil, nil, err
		}
		return producer, func() { c.stop(uri, producer) }, nil
	}
	c.lock.Lock()
	entry, ok := c.cache.Get(uri)
	if !ok {
		if producer, err = c.factory(uri); err != nil {
			c.lock.Unlock()
			return nil, nil, err
		}
		entry = &cachedProducer{uri: uri, producer: producer}
		c.cache.Add(uri, entry)
	}
	entry.refs++
	stale := c.takeStale()
	c.lock.Unlock()
	c.stopAll(stale)

	var once sync.Once
	return entry.producer, func() { once.Do(func() { c.release(entry) }) }, nil
}

func (c *ProducerCache) release(entry *cachedProducer) {
	c.lock.Lock()
	entry.refs--
	done := entry.evicted && entry.refs == 0
	c.lock.Unlock()
	if done {
		c.stop(entry.uri, entry.producer)
	}
}

// Len returns the number of cached producers.
func (c *ProducerCache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// Stop evicts every cached producer. Producers in use are stopped when
// released.
func (c *ProducerCache) Stop() {
	if c.cache == nil {
		return
	}
	c.lock.Lock()
	c.cache.Purge()
	stale := c.takeStale()
	c.lock.Unlock()
	c.stopAll(stale)
}

func (c *ProducerCache) takeStale() []*cachedProducer {
	stale := c.stale
	c.stale = nil
	return stale
}

func (c *ProducerCache) stopAll(entries []*cachedProducer) {
	for _, entry := range entries {
		c.stop(entry.uri, entry.producer)
	}
}

func (c *ProducerCache) stop(uri string, producer types.Producer) {
	if err := producer.Stop(); err != nil {
		types.Warnf(c.logger, "stop producer %s error: %s", uri, err)
	}
}
