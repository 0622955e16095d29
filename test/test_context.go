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

// Package test holds helpers for component tests that do not need a full
// engine.
package test

import (
	"fmt"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
)

var _ types.EngineContext = (*EngineContext)(nil)

// EngineContext is an engine stand-in. Producers are looked up in a map of
// uri to processor; unknown uris fail with ErrComponentNotFound.
type EngineContext struct {
	config types.Config

	lock       sync.RWMutex
	targets    map[string]types.Processor
	listeners  []func(routeId string)
	components map[string]types.Component
}

// NewEngineContext creates a context with config.
func NewEngineContext(config types.Config) *EngineContext {
	return &EngineContext{
		config:     config,
		targets:    make(map[string]types.Processor),
		components: make(map[string]types.Component),
	}
}

func (c *EngineContext) Config() types.Config {
	return c.config
}

// Handle makes uri resolvable, sending to it runs processor.
func (c *EngineContext) Handle(uri string, processor types.Processor) *EngineContext {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.targets[uri] = processor
	return c
}

func (c *EngineContext) GetEndpoint(uri string) (types.Endpoint, error) {
	c.lock.RLock()
	processor, ok := c.targets[uri]
	c.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrComponentNotFound, uri)
	}
	return &endpoint{uri: uri, processor: processor}, nil
}

func (c *EngineContext) CreateProducer(uri string) (types.Producer, error) {
	e, err := c.GetEndpoint(uri)
	if err != nil {
		return nil, err
	}
	return e.CreateProducer()
}

func (c *EngineContext) AddRouteStoppedListener(fn func(routeId string)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, fn)
}

// AddComponent initialises component and makes it available to Component.
func (c *EngineContext) AddComponent(component types.Component, configuration types.Configuration) error {
	if err := component.Init(c, configuration); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.components[component.Type()] = component
	return nil
}

func (c *EngineContext) Component(scheme string) (types.Component, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	component, ok := c.components[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrComponentNotFound, scheme)
	}
	return component, nil
}

// StopRoute notifies the route stopped listeners.
func (c *EngineContext) StopRoute(routeId string) {
	c.lock.RLock()
	listeners := append([]func(string){}, c.listeners...)
	c.lock.RUnlock()
	for _, fn := range listeners {
		fn(routeId)
	}
}

type endpoint struct {
	uri       string
	processor types.Processor
}

func (e *endpoint) Uri() string {
	return e.uri
}

func (e *endpoint) CreateProducer() (types.Producer, error) {
	return &producer{endpoint: e}, nil
}

func (e *endpoint) CreateConsumer(types.Processor) (types.Consumer, error) {
	return nil, types.ErrConsumerNotSupported
}

type producer struct {
	endpoint *endpoint
}

func (p *producer) Process(exchange *types.Exchange) error {
	return p.endpoint.processor.Process(exchange)
}

func (p *producer) Start() error {
	return nil
}

func (p *producer) Stop() error {
	return nil
}

func (p *producer) Endpoint() types.Endpoint {
	return p.endpoint
}
