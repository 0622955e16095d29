/*
 * Copyright 2023 The RuleGo Authors.
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

package types

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/rulego-connectors/api/pool"
)

// Config defines the configuration of the engine.
type Config struct {
	// ScriptMaxExecutionTime is the maximum execution time for script predicates, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// Pool is the default goroutine pool used for parallel dispatch and asynchronous processing.
	// The default implementation is `pool.WorkerPool`.
	Pool Pool
	// Logger is the logging interface, defaulting to an INFO level logger on stdout.
	Logger Logger
	// Properties are global properties in key-value format.
	// Endpoint uris can reference them with ${global.propertyKey}.
	Properties Headers
	// Beans is the registry of named objects that endpoint parameters can
	// reference with `#name`: pools, aggregation strategies, processors,
	// predicates, data sources.
	Beans *Beans
	// Udf is a map of custom functions made available to script predicates.
	Udf map[string]interface{}
	// MetricsRegisterer receives the collectors of components that export
	// metrics. Nil disables metrics.
	MetricsRegisterer prometheus.Registerer
}

// RegisterUdf registers a custom function for script predicates.
func (c *Config) RegisterUdf(name string, value interface{}) {
	if c.Udf == nil {
		c.Udf = make(map[string]interface{})
	}
	c.Udf[name] = value
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 NewLevelLogger(DefaultLogger(), InfoLevel),
		Properties:             NewHeaders(),
		Beans:                  NewBeans(),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	if c.Pool == nil {
		c.Pool = DefaultPool()
	}
	return *c
}

// DefaultPool provides a default goroutine pool.
func DefaultPool() Pool {
	wp := &pool.WorkerPool{MaxWorkersCount: math.MaxInt32}
	wp.Start()
	return wp
}

// Beans is a concurrency safe registry of named objects.
type Beans struct {
	lock  sync.RWMutex
	beans map[string]interface{}
}

func NewBeans() *Beans {
	return &Beans{beans: make(map[string]interface{})}
}

// Register binds value to name, replacing any previous binding.
func (b *Beans) Register(name string, value interface{}) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.beans[name] = value
}

// Lookup returns the bean bound to name.
func (b *Beans) Lookup(name string) (interface{}, bool) {
	if b == nil {
		return nil, false
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.beans[name]
	return v, ok
}

// Remove unbinds name.
func (b *Beans) Remove(name string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.beans, name)
}

// IsRef reports whether s is a bean reference of the form `#name`.
func IsRef(s string) bool {
	return strings.HasPrefix(s, RefPrefix) && len(s) > len(RefPrefix)
}

// LookupRef resolves a `#name` reference (the prefix is optional) and checks
// that the bean has type T.
func LookupRef[T any](beans *Beans, ref string) (T, error) {
	var zero T
	name := strings.TrimPrefix(ref, RefPrefix)
	v, ok := beans.Lookup(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrBeanNotFound, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T", ErrBeanType, name, v)
	}
	return t, nil
}
