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

// Package mock provides endpoints that record the exchanges sent to them and
// verify expectations in tests.
//
//	m, _ := mock.Resolve(e, "mock:a")
//	m.ExpectedMessageCount(2)
//	...
//	err := m.AssertIsSatisfied(time.Second)
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
)

const Type = "mock"

var _ types.Component = (*Component)(nil)

type Component struct {
	base.Component
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	if remaining == "" {
		return nil, fmt.Errorf("%w: mock endpoint requires a name, uri=%s", types.ErrIllegalArgument, uri)
	}
	e := &Endpoint{Endpoint: base.NewEndpoint(uri), Name: remaining, expected: -1}
	e.cond = sync.NewCond(&e.lock)
	return e, nil
}

// Resolve returns the mock endpoint of uri.
func Resolve(ctx types.EngineContext, uri string) (*Endpoint, error) {
	endpoint, err := ctx.GetEndpoint(uri)
	if err != nil {
		return nil, err
	}
	m, ok := endpoint.(*Endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a mock endpoint", types.ErrIllegalArgument, uri)
	}
	return m, nil
}

// Endpoint records received exchanges.
type Endpoint struct {
	base.Endpoint
	Name string

	lock     sync.Mutex
	cond     *sync.Cond
	received []*types.Exchange
	expected int
	bodies   []string
	handler  types.Processor
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	p := &producer{endpoint: e}
	p.ProducerEndpoint = e
	return p, nil
}

// ExpectedMessageCount sets the number of exchanges AssertIsSatisfied waits for.
func (e *Endpoint) ExpectedMessageCount(count int) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.expected = count
}

// ExpectedBodiesReceived expects exactly bodies, in order.
func (e *Endpoint) ExpectedBodiesReceived(bodies ...string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.bodies = bodies
	e.expected = len(bodies)
}

// WhenAnyExchangeReceived runs processor on every received exchange. Its
// error is returned to the sender.
func (e *Endpoint) WhenAnyExchangeReceived(processor types.Processor) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.handler = processor
}

// AssertIsSatisfied waits up to timeout for the expected exchanges and checks
// the expectations. Receiving more exchanges than expected fails as well.
func (e *Endpoint) AssertIsSatisfied(timeout time.Duration) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.expected < 0 {
		return nil
	}
	timer := time.AfterFunc(timeout, func() {
		e.lock.Lock()
		e.cond.Broadcast()
		e.lock.Unlock()
	})
	defer timer.Stop()
	deadline := time.Now().Add(timeout)
	for len(e.received) < e.expected && time.Now().Before(deadline) {
		e.cond.Wait()
	}
	if len(e.received) != e.expected {
		return fmt.Errorf("%s received message count: expected %d but was %d", e.Uri(), e.expected, len(e.received))
	}
	for i, body := range e.bodies {
		if actual := e.received[i].In.Body; actual != body {
			return fmt.Errorf("%s message %d body: expected %q but was %q", e.Uri(), i, body, actual)
		}
	}
	return nil
}

// ReceivedExchanges returns the received exchanges in arrival order.
func (e *Endpoint) ReceivedExchanges() []*types.Exchange {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]*types.Exchange(nil), e.received...)
}

// ReceivedBodies returns the bodies of the received exchanges.
func (e *Endpoint) ReceivedBodies() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	bodies := make([]string, 0, len(e.received))
	for _, ex := range e.received {
		bodies = append(bodies, ex.In.Body)
	}
	return bodies
}

// ReceivedCount returns the number of received exchanges.
func (e *Endpoint) ReceivedCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.received)
}

// Reset clears received exchanges and expectations.
func (e *Endpoint) Reset() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.received = nil
	e.bodies = nil
	e.expected = -1
	e.handler = nil
}

func (e *Endpoint) receive(exchange *types.Exchange) error {
	e.lock.Lock()
	handler := e.handler
	e.lock.Unlock()
	var err error
	if handler != nil {
		err = handler.Process(exchange)
	}
	// record a snapshot so later processors do not alter what was received
	snapshot := exchange.Copy()
	snapshot.Id = exchange.Id
	e.lock.Lock()
	e.received = append(e.received, snapshot)
	e.cond.Broadcast()
	e.lock.Unlock()
	return err
}

type producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *producer) Process(exchange *types.Exchange) error {
	return p.endpoint.receive(exchange)
}
