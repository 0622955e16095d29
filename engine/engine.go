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

// Package engine is the host runtime connectors plug into. It resolves
// endpoint uris through registered components, runs routes that feed consumer
// exchanges through a pipeline of processors and producers, and offers a
// producer template to send exchanges from application code.
//
//	e := engine.New(engine.WithConfig(types.NewConfig()))
//	_, err := e.From("direct:orders").Id("orders").To("dynamic-router:orders").End()
//	err = e.Start()
//	defer e.Stop()
//	_, err = e.ProducerTemplate().SendBody("direct:orders", `{"amount":10}`)
package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/str"
	"github.com/rulego/rulego-connectors/utils/uri"
)

var _ types.EngineContext = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(config types.Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithRegistry sets the component registry, Registry by default.
func WithRegistry(registry types.ComponentRegistry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithComponentConfiguration sets the component level configuration passed
// to Init for scheme.
func WithComponentConfiguration(scheme string, configuration types.Configuration) Option {
	return func(e *Engine) {
		e.componentConfigs[scheme] = configuration
	}
}

// Engine owns components, endpoints and routes.
type Engine struct {
	config           types.Config
	registry         types.ComponentRegistry
	componentConfigs map[string]types.Configuration

	componentsLock sync.Mutex
	components     map[string]types.Component

	lock      sync.RWMutex
	endpoints map[string]types.Endpoint
	routes    map[string]*Route
	routeIds  []string

	listenersLock sync.RWMutex
	listeners     []func(routeId string)

	templateOnce sync.Once
	template     *ProducerTemplate

	routeSeq int64
	started  int32
	stopped  int32
}

// New creates an engine. Without WithConfig the default configuration is used.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry:         Registry,
		componentConfigs: make(map[string]types.Configuration),
		components:       make(map[string]types.Component),
		endpoints:        make(map[string]types.Endpoint),
		routes:           make(map[string]*Route),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.Logger == nil {
		e.config = types.NewConfig()
	}
	if e.config.Beans == nil {
		e.config.Beans = types.NewBeans()
	}
	if e.config.Pool == nil {
		e.config.Pool = types.DefaultPool()
	}
	return e
}

func (e *Engine) Config() types.Config {
	return e.config
}

// AddComponent initialises and installs a component instance for its scheme,
// taking precedence over the registry.
func (e *Engine) AddComponent(component types.Component, configuration types.Configuration) error {
	if err := component.Init(e, configuration); err != nil {
		return err
	}
	e.componentsLock.Lock()
	defer e.componentsLock.Unlock()
	if _, ok := e.components[component.Type()]; ok {
		component.Destroy()
		return fmt.Errorf("%w: scheme=%s", types.ErrComponentExists, component.Type())
	}
	e.components[component.Type()] = component
	return nil
}

// Component returns the initialised component for scheme, creating it from
// the registry on first use.
func (e *Engine) Component(scheme string) (types.Component, error) {
	e.componentsLock.Lock()
	defer e.componentsLock.Unlock()
	if c, ok := e.components[scheme]; ok {
		return c, nil
	}
	c, err := e.registry.NewComponent(scheme)
	if err != nil {
		return nil, err
	}
	if err := c.Init(e, e.componentConfigs[scheme]); err != nil {
		return nil, fmt.Errorf("init component %s: %w", scheme, err)
	}
	e.components[scheme] = c
	return c, nil
}

// GetEndpoint resolves rawUri. ${global.x} placeholders are replaced with
// global properties, then the uri is normalised so equivalent uris share
// one endpoint.
func (e *Engine) GetEndpoint(rawUri string) (types.Endpoint, error) {
	if atomic.LoadInt32(&e.stopped) == 1 {
		return nil, types.ErrEngineStopped
	}
	resolved := str.SprintfVar(rawUri, types.Global+".", e.config.Properties)
	u, err := uri.Parse(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidUri, err)
	}
	key := u.String()

	e.lock.RLock()
	endpoint, ok := e.endpoints[key]
	e.lock.RUnlock()
	if ok {
		return endpoint, nil
	}

	component, err := e.Component(u.Scheme)
	if err != nil {
		return nil, err
	}
	endpoint, err = component.CreateEndpoint(key, u.Remaining, u.Config())
	if err != nil {
		return nil, fmt.Errorf("create endpoint %s: %w", key, err)
	}

	e.lock.Lock()
	if existing, ok := e.endpoints[key]; ok {
		e.lock.Unlock()
		return existing, nil
	}
	e.endpoints[key] = endpoint
	e.lock.Unlock()

	if service, ok := endpoint.(types.Service); ok {
		if err := service.Start(); err != nil {
			e.lock.Lock()
			delete(e.endpoints, key)
			e.lock.Unlock()
			return nil, fmt.Errorf("start endpoint %s: %w", key, err)
		}
	}
	return endpoint, nil
}

// CreateProducer resolves uri and returns a started producer.
func (e *Engine) CreateProducer(uri string) (types.Producer, error) {
	endpoint, err := e.GetEndpoint(uri)
	if err != nil {
		return nil, err
	}
	producer, err := endpoint.CreateProducer()
	if err != nil {
		return nil, err
	}
	if err := producer.Start(); err != nil {
		return nil, err
	}
	return producer, nil
}

// AddRouteStoppedListener registers fn, called after every route stop.
func (e *Engine) AddRouteStoppedListener(fn func(routeId string)) {
	e.listenersLock.Lock()
	defer e.listenersLock.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) fireRouteStopped(routeId string) {
	e.listenersLock.RLock()
	listeners := append([]func(string){}, e.listeners...)
	e.listenersLock.RUnlock()
	for _, fn := range listeners {
		fn(routeId)
	}
}

// From starts the definition of a route consuming from uri.
func (e *Engine) From(uri string) *RouteBuilder {
	return newRouteBuilder(e, uri)
}

// AddRoute adds a route. If the engine is started, the route is started too
// unless it is disabled.
func (e *Engine) AddRoute(route *Route) error {
	if route.Id == "" {
		route.Id = fmt.Sprintf("route%d", atomic.AddInt64(&e.routeSeq, 1))
	}
	e.lock.Lock()
	if _, ok := e.routes[route.Id]; ok {
		e.lock.Unlock()
		return fmt.Errorf("%w: id=%s", types.ErrRouteExists, route.Id)
	}
	route.engine = e
	e.routes[route.Id] = route
	e.routeIds = append(e.routeIds, route.Id)
	e.lock.Unlock()

	if atomic.LoadInt32(&e.started) == 1 && !route.Disabled {
		return e.StartRoute(route.Id)
	}
	return nil
}

// Route returns a route by id.
func (e *Engine) Route(id string) (*Route, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	r, ok := e.routes[id]
	return r, ok
}

// Routes returns the routes in the order they were added.
func (e *Engine) Routes() []*Route {
	e.lock.RLock()
	defer e.lock.RUnlock()
	routes := make([]*Route, 0, len(e.routeIds))
	for _, id := range e.routeIds {
		routes = append(routes, e.routes[id])
	}
	return routes
}

// StartRoute starts the consumer of a route.
func (e *Engine) StartRoute(id string) error {
	route, ok := e.Route(id)
	if !ok {
		return fmt.Errorf("%w: id=%s", types.ErrRouteNotFound, id)
	}
	return route.start()
}

// StopRoute stops a route and notifies route stopped listeners.
func (e *Engine) StopRoute(id string) error {
	route, ok := e.Route(id)
	if !ok {
		return fmt.Errorf("%w: id=%s", types.ErrRouteNotFound, id)
	}
	if !route.stop() {
		return nil
	}
	e.fireRouteStopped(id)
	return nil
}

// RemoveRoute stops and removes a route.
func (e *Engine) RemoveRoute(id string) error {
	if err := e.StopRoute(id); err != nil {
		return err
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.routes, id)
	for i, rid := range e.routeIds {
		if rid == id {
			e.routeIds = append(e.routeIds[:i], e.routeIds[i+1:]...)
			break
		}
	}
	return nil
}

// Start starts every enabled route. Routes added later start immediately.
func (e *Engine) Start() error {
	if atomic.LoadInt32(&e.stopped) == 1 {
		return types.ErrEngineStopped
	}
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil
	}
	for _, route := range e.Routes() {
		if route.Disabled {
			continue
		}
		if err := route.start(); err != nil {
			return fmt.Errorf("start route %s: %w", route.Id, err)
		}
	}
	types.Infof(e.config.Logger, "engine started with %d routes", len(e.Routes()))
	return nil
}

// Stop stops routes in reverse order, then producers, endpoints and
// components. The engine cannot be restarted.
func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.stopped, 0, 1) {
		return
	}
	routes := e.Routes()
	for i := len(routes) - 1; i >= 0; i-- {
		if routes[i].stop() {
			e.fireRouteStopped(routes[i].Id)
		}
	}
	if e.template != nil {
		e.template.Stop()
	}

	e.lock.Lock()
	endpoints := e.endpoints
	e.endpoints = make(map[string]types.Endpoint)
	e.lock.Unlock()
	keys := make([]string, 0, len(endpoints))
	for k := range endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if service, ok := endpoints[k].(types.Service); ok {
			if err := service.Stop(); err != nil {
				types.Warnf(e.config.Logger, "stop endpoint %s error: %s", k, err)
			}
		}
	}

	e.componentsLock.Lock()
	for _, c := range e.components {
		c.Destroy()
	}
	e.components = make(map[string]types.Component)
	e.componentsLock.Unlock()
	types.Infof(e.config.Logger, "engine stopped")
}

// ProducerTemplate returns the engine's shared producer template.
func (e *Engine) ProducerTemplate() *ProducerTemplate {
	e.templateOnce.Do(func() {
		e.template = NewProducerTemplate(e, 0)
	})
	return e.template
}
