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

package engine

import (
	"fmt"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/api/types/metrics"
	"github.com/rulego/rulego-connectors/utils/runtime"
)

// RouteStatus is the lifecycle state of a route.
type RouteStatus string

const (
	RouteStopped RouteStatus = "Stopped"
	RouteStarted RouteStatus = "Started"
)

// step is one element of a route pipeline: either a processor or a producer
// for uri, created when the route starts.
type step struct {
	uri       string
	processor types.Processor
}

// Route feeds every exchange received by its consumer through its steps, in
// order. A step error stops the pipeline and is recorded on the exchange.
type Route struct {
	Id       string
	From     string
	Disabled bool

	engine  *Engine
	steps   []step
	metrics *metrics.RouteMetrics

	lock      sync.Mutex
	status    RouteStatus
	consumer  types.Consumer
	producers []types.Producer
}

// NewRoute creates a route consuming from uri.
func NewRoute(id string, from string) *Route {
	return &Route{
		Id:      id,
		From:    from,
		metrics: metrics.NewRouteMetrics(),
		status:  RouteStopped,
	}
}

// Uris returns the uri of the consumer followed by the producer uris.
func (r *Route) Uris() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	uris := []string{r.From}
	for _, s := range r.steps {
		if s.uri != "" {
			uris = append(uris, s.uri)
		}
	}
	return uris
}

// AddProcessor appends a processor step.
func (r *Route) AddProcessor(processor types.Processor) {
	r.steps = append(r.steps, step{processor: processor})
}

// AddTo appends a producer step.
func (r *Route) AddTo(uri string) {
	r.steps = append(r.steps, step{uri: uri})
}

// Status returns the lifecycle state.
func (r *Route) Status() RouteStatus {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.status
}

// Metrics returns a snapshot of the route counters.
func (r *Route) Metrics() metrics.RouteMetrics {
	return r.metrics.Get()
}

// Process runs the pipeline. It is the processor handed to the consumer.
func (r *Route) Process(exchange *types.Exchange) (err error) {
	if exchange.FromRouteId == "" {
		exchange.FromRouteId = r.Id
	}
	if exchange.FromEndpoint == "" {
		exchange.FromEndpoint = r.From
	}
	r.metrics.Begin()
	defer func() {
		if caught := recover(); caught != nil {
			exchange.Err = runtime.PanicError(caught)
			err = exchange.Err
		}
		r.metrics.Done(err)
	}()

	r.lock.Lock()
	steps := r.runtimeSteps()
	r.lock.Unlock()
	for _, s := range steps {
		if err = s.Process(exchange); err != nil {
			exchange.Err = err
			return err
		}
		if exchange.Err != nil {
			return exchange.Err
		}
	}
	return nil
}

// runtimeSteps binds producer steps to the started producers. Callers hold
// r.lock.
func (r *Route) runtimeSteps() []types.Processor {
	processors := make([]types.Processor, 0, len(r.steps))
	p := 0
	for _, s := range r.steps {
		if s.processor != nil {
			processors = append(processors, s.processor)
		} else if p < len(r.producers) {
			processors = append(processors, r.producers[p])
			p++
		} else {
			uri := s.uri
			processors = append(processors, types.ProcessorFunc(func(*types.Exchange) error {
				return fmt.Errorf("route %s is not started, cannot send to %s", r.Id, uri)
			}))
		}
	}
	return processors
}

func (r *Route) start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.status == RouteStarted {
		return nil
	}
	var producers []types.Producer
	stopAll := func() {
		for _, p := range producers {
			_ = p.Stop()
		}
	}
	for _, s := range r.steps {
		if s.processor != nil {
			continue
		}
		producer, err := r.engine.CreateProducer(s.uri)
		if err != nil {
			stopAll()
			return fmt.Errorf("route %s: %w", r.Id, err)
		}
		producers = append(producers, producer)
	}
	endpoint, err := r.engine.GetEndpoint(r.From)
	if err != nil {
		stopAll()
		return fmt.Errorf("route %s: %w", r.Id, err)
	}
	consumer, err := endpoint.CreateConsumer(r)
	if err != nil {
		stopAll()
		return fmt.Errorf("route %s: %w", r.Id, err)
	}
	if aware, ok := consumer.(types.RouteAware); ok {
		aware.SetRouteId(r.Id)
	}
	r.producers = producers
	if err := consumer.Start(); err != nil {
		stopAll()
		r.producers = nil
		return fmt.Errorf("route %s: %w", r.Id, err)
	}
	r.consumer = consumer
	r.status = RouteStarted
	types.Infof(r.engine.config.Logger, "route %s started, consuming from %s", r.Id, r.From)
	return nil
}

// stop reports whether the route was running.
func (r *Route) stop() bool {
	r.lock.Lock()
	if r.status != RouteStarted {
		r.lock.Unlock()
		return false
	}
	consumer, producers := r.consumer, r.producers
	r.consumer = nil
	r.producers = nil
	r.status = RouteStopped
	r.lock.Unlock()

	// outside the lock, consumers may wait for in-flight exchanges
	if err := consumer.Stop(); err != nil {
		types.Warnf(r.engine.config.Logger, "route %s: stop consumer error: %s", r.Id, err)
	}
	for _, p := range producers {
		if err := p.Stop(); err != nil {
			types.Warnf(r.engine.config.Logger, "route %s: stop producer error: %s", r.Id, err)
		}
	}
	types.Infof(r.engine.config.Logger, "route %s stopped", r.Id)
	return true
}

// RouteBuilder defines a route fluently.
type RouteBuilder struct {
	engine *Engine
	route  *Route
}

func newRouteBuilder(engine *Engine, from string) *RouteBuilder {
	return &RouteBuilder{engine: engine, route: NewRoute("", from)}
}

// Id sets the route id.
func (b *RouteBuilder) Id(id string) *RouteBuilder {
	b.route.Id = id
	return b
}

// Disabled adds the route without starting it.
func (b *RouteBuilder) Disabled() *RouteBuilder {
	b.route.Disabled = true
	return b
}

// Process appends a processor.
func (b *RouteBuilder) Process(processor types.Processor) *RouteBuilder {
	b.route.AddProcessor(processor)
	return b
}

// ProcessFunc appends a function processor.
func (b *RouteBuilder) ProcessFunc(fn func(exchange *types.Exchange) error) *RouteBuilder {
	return b.Process(types.ProcessorFunc(fn))
}

// To appends a producer step for each uri.
func (b *RouteBuilder) To(uris ...string) *RouteBuilder {
	for _, uri := range uris {
		b.route.AddTo(uri)
	}
	return b
}

// End validates the endpoints and adds the route to the engine.
func (b *RouteBuilder) End() (*Route, error) {
	for _, s := range b.route.steps {
		if s.processor != nil {
			continue
		}
		if _, err := b.engine.GetEndpoint(s.uri); err != nil {
			return nil, err
		}
	}
	if _, err := b.engine.GetEndpoint(b.route.From); err != nil {
		return nil, err
	}
	if err := b.engine.AddRoute(b.route); err != nil {
		return nil, err
	}
	return b.route, nil
}
