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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithPool is an option that sets the pool of the Config.
func WithPool(pool Pool) Option {
	return func(c *Config) error {
		c.Pool = pool
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithProperties is an option that sets the global properties of the Config.
func WithProperties(properties Headers) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the js predicate timeout.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithBean registers a named bean.
func WithBean(name string, value interface{}) Option {
	return func(c *Config) error {
		if c.Beans == nil {
			c.Beans = NewBeans()
		}
		c.Beans.Register(name, value)
		return nil
	}
}

// WithExecutorService registers a named pool that endpoints can reference
// with `executorService=#name`.
func WithExecutorService(name string, pool Pool) Option {
	return WithBean(name, pool)
}

// WithMetricsRegisterer is an option that enables component metrics.
func WithMetricsRegisterer(registerer prometheus.Registerer) Option {
	return func(c *Config) error {
		c.MetricsRegisterer = registerer
		return nil
	}
}
