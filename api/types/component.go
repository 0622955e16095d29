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

// Configuration holds component or endpoint parameters, usually decoded from
// uri query parameters. Use maps.Map2Struct to bind it to a struct.
type Configuration map[string]interface{}

// Component is a factory of endpoints for one uri scheme.
//
// A component is registered once and initialised once per engine:
//
//	engine.Registry.Register(&MyComponent{})
//
// Endpoints are then created for every distinct uri `scheme:remaining?params`.
type Component interface {
	// Type is the uri scheme handled by the component. It must be unique.
	Type() string
	// New returns a fresh, uninitialised instance.
	New() Component
	// Init binds the component to an engine. configuration holds component
	// level properties.
	Init(ctx EngineContext, configuration Configuration) error
	// CreateEndpoint creates an endpoint for uri. remaining is the part after
	// the scheme without query, params are the decoded query parameters.
	CreateEndpoint(uri string, remaining string, params Configuration) (Endpoint, error)
	// Destroy releases resources held by the component.
	Destroy()
}

// ComponentRegistry keeps component prototypes by scheme.
type ComponentRegistry interface {
	// Register adds a component. An existing scheme returns ErrComponentExists.
	Register(component Component) error
	Unregister(scheme string) error
	// NewComponent returns a new instance for scheme.
	NewComponent(scheme string) (Component, error)
	GetComponents() map[string]Component
}

// Endpoint is a configured address that can produce or consume exchanges.
type Endpoint interface {
	Uri() string
	CreateProducer() (Producer, error)
	// CreateConsumer creates a consumer that hands every received exchange to
	// processor. Endpoints that cannot consume return ErrConsumerNotSupported.
	CreateConsumer(processor Processor) (Consumer, error)
}

// Service has a start/stop lifecycle.
type Service interface {
	Start() error
	Stop() error
}

// Processor handles an exchange synchronously.
type Processor interface {
	Process(exchange *Exchange) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(exchange *Exchange) error

func (f ProcessorFunc) Process(exchange *Exchange) error {
	return f(exchange)
}

// AsyncCallback is invoked once an asynchronous process call completes.
// doneSync reports whether the work completed on the calling goroutine.
type AsyncCallback func(doneSync bool)

// AsyncProcessor handles an exchange asynchronously. ProcessAsync returns true
// when the exchange completed synchronously, in which case callback has already
// been invoked with doneSync=true.
type AsyncProcessor interface {
	Processor
	ProcessAsync(exchange *Exchange, callback AsyncCallback) bool
}

// Producer sends exchanges to an endpoint.
type Producer interface {
	Processor
	Service
	Endpoint() Endpoint
}

// Consumer receives exchanges from an endpoint and feeds them to a processor.
type Consumer interface {
	Service
	Endpoint() Endpoint
}

// RouteAware is implemented by consumers that need to know the route they
// feed.
type RouteAware interface {
	SetRouteId(routeId string)
}

// Predicate evaluates an exchange.
type Predicate interface {
	Matches(exchange *Exchange) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(exchange *Exchange) (bool, error)

func (f PredicateFunc) Matches(exchange *Exchange) (bool, error) {
	return f(exchange)
}

// AggregationStrategy merges the result of a sub exchange into the
// aggregate. oldExchange is nil on the first call. The returned exchange
// becomes the next oldExchange.
type AggregationStrategy interface {
	Aggregate(oldExchange, newExchange *Exchange) *Exchange
}

// AggregationStrategyFunc adapts a function to AggregationStrategy.
type AggregationStrategyFunc func(oldExchange, newExchange *Exchange) *Exchange

func (f AggregationStrategyFunc) Aggregate(oldExchange, newExchange *Exchange) *Exchange {
	return f(oldExchange, newExchange)
}

// EngineContext is what components see of the engine.
type EngineContext interface {
	// Config returns the engine configuration.
	Config() Config
	// GetEndpoint resolves uri, creating and caching the endpoint on first use.
	GetEndpoint(uri string) (Endpoint, error)
	// CreateProducer resolves uri and returns a started producer.
	CreateProducer(uri string) (Producer, error)
	// AddRouteStoppedListener registers fn to be called after a route stops.
	AddRouteStoppedListener(fn func(routeId string))
	// Component returns the initialised component for scheme. It must not be
	// called from Component.Init.
	Component(scheme string) (Component, error)
}

// Pool is a goroutine pool.
type Pool interface {
	// Submit runs task on the pool. It returns an error when the pool is full
	// or stopped.
	Submit(task func()) error
	// Release stops the pool.
	Release()
}
