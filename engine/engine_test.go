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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/direct"
	"github.com/rulego/rulego-connectors/components/log"
	"github.com/rulego/rulego-connectors/components/mock"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, logger *test.RecordingLogger) *Engine {
	registry := new(ComponentRegistry)
	require.Nil(t, registry.Register(&direct.Component{}))
	require.Nil(t, registry.Register(&mock.Component{}))
	require.Nil(t, registry.Register(&log.Component{}))
	if logger == nil {
		logger = &test.RecordingLogger{}
	}
	e := New(WithConfig(test.NewConfig(logger)), WithRegistry(registry))
	t.Cleanup(e.Stop)
	return e
}

func TestRegistry(t *testing.T) {
	registry := new(ComponentRegistry)
	assert.Nil(t, registry.Register(&mock.Component{}))
	assert.True(t, errors.Is(registry.Register(&mock.Component{}), types.ErrComponentExists))
	c, err := registry.NewComponent("mock")
	assert.Nil(t, err)
	assert.Equal(t, "mock", c.Type())
	_, err = registry.NewComponent("nope")
	assert.True(t, errors.Is(err, types.ErrComponentNotFound))
	assert.Equal(t, 1, len(registry.GetComponents()))
	assert.Nil(t, registry.Unregister("mock"))
	assert.Equal(t, 0, len(registry.GetComponents()))
}

func TestGetEndpointNormalisesAndCaches(t *testing.T) {
	e := newTestEngine(t, nil)
	a, err := e.GetEndpoint("mock:a?b=2&a=1")
	require.Nil(t, err)
	b, err := e.GetEndpoint("mock:a?a=1&b=2")
	require.Nil(t, err)
	assert.True(t, a == b)

	e.config.Properties.PutValue("target", "orders")
	c, err := e.GetEndpoint("mock:${global.target}")
	require.Nil(t, err)
	assert.Equal(t, "mock:orders", c.Uri())

	_, err = e.GetEndpoint("nope:x")
	assert.True(t, errors.Is(err, types.ErrComponentNotFound))
	_, err = e.GetEndpoint("noscheme")
	assert.NotNil(t, err)
}

func TestRoutePipeline(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.From("direct:in").Id("r1").
		ProcessFunc(func(exchange *types.Exchange) error {
			exchange.In.Body = strings.ToUpper(exchange.In.Body)
			return nil
		}).
		To("log:trace?showHeaders=true", "mock:out").
		End()
	require.Nil(t, err)
	require.Nil(t, e.Start())

	out, err := mock.Resolve(e, "mock:out")
	require.Nil(t, err)
	out.ExpectedBodiesReceived("HELLO", "WORLD")

	reply, err := e.ProducerTemplate().RequestBody("direct:in", "hello")
	assert.Nil(t, err)
	assert.Equal(t, "HELLO", reply)
	_, err = e.ProducerTemplate().SendBody("direct:in", "world")
	assert.Nil(t, err)
	assert.Nil(t, out.AssertIsSatisfied(time.Second))

	ex := out.ReceivedExchanges()[0]
	assert.Equal(t, "r1", ex.FromRouteId)

	route, ok := e.Route("r1")
	require.True(t, ok)
	assert.Equal(t, RouteStarted, route.Status())
	assert.Equal(t, int64(2), route.Metrics().Completed)
}

func TestRouteErrorStopsPipeline(t *testing.T) {
	e := newTestEngine(t, nil)
	boom := errors.New("boom")
	_, err := e.From("direct:in").
		ProcessFunc(func(exchange *types.Exchange) error { return boom }).
		To("mock:never").
		End()
	require.Nil(t, err)
	require.Nil(t, e.Start())

	ex, err := e.ProducerTemplate().SendBody("direct:in", "x")
	assert.True(t, errors.Is(err, boom))
	assert.True(t, ex.Failed())
	never, _ := mock.Resolve(e, "mock:never")
	assert.Equal(t, 0, never.ReceivedCount())
}

func TestRoutePanicIsRecovered(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.From("direct:in").
		ProcessFunc(func(exchange *types.Exchange) error { panic("bad") }).
		End()
	require.Nil(t, err)
	require.Nil(t, e.Start())
	_, err = e.ProducerTemplate().SendBody("direct:in", "x")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestStopRouteNotifiesListeners(t *testing.T) {
	e := newTestEngine(t, nil)
	var lock sync.Mutex
	var stopped []string
	e.AddRouteStoppedListener(func(routeId string) {
		lock.Lock()
		defer lock.Unlock()
		stopped = append(stopped, routeId)
	})
	_, err := e.From("direct:a").Id("a").To("mock:a").End()
	require.Nil(t, err)
	require.Nil(t, e.Start())

	require.Nil(t, e.StopRoute("a"))
	// stopping twice notifies once
	require.Nil(t, e.StopRoute("a"))
	assert.Equal(t, []string{"a"}, stopped)

	_, err = e.ProducerTemplate().SendBody("direct:a", "x")
	assert.True(t, errors.Is(err, types.ErrNoConsumer))

	require.Nil(t, e.StartRoute("a"))
	_, err = e.ProducerTemplate().SendBody("direct:a", "x")
	assert.Nil(t, err)

	assert.True(t, errors.Is(e.StopRoute("missing"), types.ErrRouteNotFound))
	require.Nil(t, e.RemoveRoute("a"))
	_, ok := e.Route("a")
	assert.False(t, ok)
}

func TestDuplicateRoute(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.From("direct:a").Id("a").To("mock:a").End()
	require.Nil(t, err)
	_, err = e.From("direct:b").Id("a").To("mock:a").End()
	assert.True(t, errors.Is(err, types.ErrRouteExists))
}

func TestDisabledRouteIsNotStarted(t *testing.T) {
	e := newTestEngine(t, nil)
	r, err := e.From("direct:a").Id("a").Disabled().To("mock:a").End()
	require.Nil(t, err)
	require.Nil(t, e.Start())
	assert.Equal(t, RouteStopped, r.Status())
}

func TestStoppedEngine(t *testing.T) {
	e := newTestEngine(t, nil)
	require.Nil(t, e.Start())
	e.Stop()
	_, err := e.GetEndpoint("mock:a")
	assert.True(t, errors.Is(err, types.ErrEngineStopped))
	assert.True(t, errors.Is(e.Start(), types.ErrEngineStopped))
}

func TestLogEndpointWritesToEngineLogger(t *testing.T) {
	logger := &test.RecordingLogger{}
	e := newTestEngine(t, logger)
	_, err := e.ProducerTemplate().SendBodyAndHeaders("log:audit?level=WARN&showHeaders=true", "payload", map[string]string{"k": "v"})
	require.Nil(t, err)
	assert.True(t, logger.Contains("[WARN]", "Exchange[audit]", "k=v", "Body: payload"))
}

func TestParseAndLoadRoutes(t *testing.T) {
	def, err := ParseRoutes([]byte(`
properties:
  out: mock:loaded
routes:
  - id: loaded
    from: direct:loaded
    to:
      - ${global.out}
`))
	require.Nil(t, err)
	require.Equal(t, 1, len(def.Routes))

	e := newTestEngine(t, nil)
	require.Nil(t, e.LoadRoutes(def))
	route, ok := e.Route("loaded")
	require.True(t, ok)
	assert.Equal(t, []string{"direct:loaded", "${global.out}"}, route.Uris())
	require.Nil(t, e.Start())
	_, err = e.ProducerTemplate().SendBody("direct:loaded", "x")
	assert.Nil(t, err)
	m, _ := mock.Resolve(e, "mock:loaded")
	assert.Equal(t, []string{"x"}, m.ReceivedBodies())

	_, err = ParseRoutes([]byte("routes:\n  - id: broken\n"))
	assert.NotNil(t, err)
}
