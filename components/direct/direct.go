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

// Package direct provides synchronous in-process hand-off between routes.
//
//	direct:<name>?block=true&timeout=30s
//
// A producer sending to direct:orders runs the exchange through the route
// consuming direct:orders on the caller's goroutine.
package direct

import (
	"fmt"
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/maps"
)

const Type = "direct"

var _ types.Component = (*Component)(nil)

// Configuration of a direct endpoint.
type Configuration struct {
	// Block makes producers wait for a consumer to start when none is
	// registered yet.
	Block bool
	// Timeout bounds the wait when Block is set.
	Timeout time.Duration
}

// Component keeps the consumers of every direct endpoint of one engine.
type Component struct {
	base.Component
	lock      sync.Mutex
	cond      *sync.Cond
	consumers map[string]*Consumer
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.consumers = make(map[string]*Consumer)
	c.cond = sync.NewCond(&c.lock)
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	if remaining == "" {
		return nil, fmt.Errorf("%w: direct endpoint requires a name, uri=%s", types.ErrIllegalArgument, uri)
	}
	config := Configuration{Timeout: 30 * time.Second}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	return &Endpoint{Endpoint: base.NewEndpoint(uri), Name: remaining, Config: config, component: c}, nil
}

func (c *Component) Destroy() {
	c.lock.Lock()
	c.consumers = make(map[string]*Consumer)
	c.lock.Unlock()
}

func (c *Component) addConsumer(name string, consumer *Consumer) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if existing, ok := c.consumers[name]; ok && existing != consumer {
		return fmt.Errorf("%w: multiple consumers for direct:%s", types.ErrIllegalArgument, name)
	}
	c.consumers[name] = consumer
	c.cond.Broadcast()
	return nil
}

func (c *Component) removeConsumer(name string, consumer *Consumer) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.consumers[name] == consumer {
		delete(c.consumers, name)
	}
}

func (c *Component) consumer(name string, block bool, timeout time.Duration) *Consumer {
	c.lock.Lock()
	defer c.lock.Unlock()
	consumer := c.consumers[name]
	if consumer != nil || !block {
		return consumer
	}
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		c.lock.Lock()
		c.cond.Broadcast()
		c.lock.Unlock()
	})
	defer timer.Stop()
	for consumer == nil && time.Now().Before(deadline) {
		c.cond.Wait()
		consumer = c.consumers[name]
	}
	return consumer
}

// Endpoint is a named in-process channel.
type Endpoint struct {
	base.Endpoint
	Name      string
	Config    Configuration
	component *Component
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	p := &Producer{endpoint: e}
	p.ProducerEndpoint = e
	return p, nil
}

func (e *Endpoint) CreateConsumer(processor types.Processor) (types.Consumer, error) {
	c := &Consumer{endpoint: e}
	c.ConsumerEndpoint = e
	c.Processor = processor
	return c, nil
}

// Producer hands exchanges to the consumer of its endpoint.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	consumer := p.endpoint.component.consumer(p.endpoint.Name, p.endpoint.Config.Block, p.endpoint.Config.Timeout)
	if consumer == nil {
		return fmt.Errorf("%w: %s", types.ErrNoConsumer, p.endpoint.Uri())
	}
	return consumer.Handle(exchange)
}

// Consumer is registered on its endpoint name while started.
type Consumer struct {
	base.Consumer
	endpoint *Endpoint
}

func (c *Consumer) Start() error {
	c.Reset()
	return c.endpoint.component.addConsumer(c.endpoint.Name, c)
}

func (c *Consumer) Stop() error {
	c.endpoint.component.removeConsumer(c.endpoint.Name, c)
	c.Shutdown(base.DefaultShutdownTimeout)
	return nil
}
