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

// Package base provides embeddable defaults for components, endpoints,
// producers and consumers.
package base

import (
	"github.com/rulego/rulego-connectors/api/types"
)

// Component keeps the engine context handed to Init.
type Component struct {
	EngineCtx     types.EngineContext
	Configuration types.Configuration
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.EngineCtx = ctx
	c.Configuration = configuration
	return nil
}

func (c *Component) Destroy() {
}

// Config returns the engine configuration.
func (c *Component) Config() types.Config {
	return c.EngineCtx.Config()
}

// Logger returns the engine logger.
func (c *Component) Logger() types.Logger {
	return c.EngineCtx.Config().Logger
}

// Endpoint implements Uri and rejects producers and consumers. Endpoints
// override the side they support.
type Endpoint struct {
	EndpointUri string
}

func NewEndpoint(uri string) Endpoint {
	return Endpoint{EndpointUri: uri}
}

func (e *Endpoint) Uri() string {
	return e.EndpointUri
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return nil, types.ErrProducerNotSupported
}

func (e *Endpoint) CreateConsumer(types.Processor) (types.Consumer, error) {
	return nil, types.ErrConsumerNotSupported
}

func (e *Endpoint) String() string {
	return e.EndpointUri
}

// Producer implements the lifecycle of a stateless producer.
type Producer struct {
	ProducerEndpoint types.Endpoint
}

func (p *Producer) Start() error {
	return nil
}

func (p *Producer) Stop() error {
	return nil
}

func (p *Producer) Endpoint() types.Endpoint {
	return p.ProducerEndpoint
}

// Consumer keeps the endpoint and processor of a consumer together with its
// route id and in-flight tracking.
type Consumer struct {
	GracefulShutdown
	ConsumerEndpoint types.Endpoint
	Processor        types.Processor
	RouteId          string
}

func (c *Consumer) Endpoint() types.Endpoint {
	return c.ConsumerEndpoint
}

func (c *Consumer) SetRouteId(routeId string) {
	c.RouteId = routeId
}

// Handle runs exchange through the processor, tracking it as in flight.
// It fails with ErrEngineStopped once shutdown started.
func (c *Consumer) Handle(exchange *types.Exchange) error {
	if !c.BeginOp() {
		return types.ErrEngineStopped
	}
	defer c.EndOp()
	if exchange.FromEndpoint == "" && c.ConsumerEndpoint != nil {
		exchange.FromEndpoint = c.ConsumerEndpoint.Uri()
	}
	if exchange.FromRouteId == "" {
		exchange.FromRouteId = c.RouteId
	}
	return c.Processor.Process(exchange)
}
