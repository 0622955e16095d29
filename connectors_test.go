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


package connectors

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/components/mock"
	"github.com/rulego/rulego-connectors/components/rest"
	"github.com/rulego/rulego-connectors/engine"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsRegistered(t *testing.T) {
	components := engine.Registry.GetComponents()
	for _, scheme := range []string{
		"direct", "mock", "log", "recipient-list", "dynamic-router", "dynamic-router-control",
		"servicenow", "watsonx", "rest", "ws", "http", "https", "mqtt", "sql",
	} {
		_, ok := components[scheme]
		assert.True(t, ok, scheme)
	}
	assert.Equal(t, len(Builtins()), len(components))
	assert.NotNil(t, Register(engine.Registry))
}

func writeRoutes(t *testing.T, dir, name, content string) {
	require.Nil(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadFolder(t *testing.T) {
	dir := t.TempDir()
	writeRoutes(t, dir, "orders.yaml", `
routes:
  - id: orders
    from: rest:/orders?server=127.0.0.1:0
    to:
      - dynamic-router:orders
subscriptions:
  - channel: orders
    id: big
    priority: 1
    predicate: msg.amount > 100
    destination: mock:big
`)
	writeRoutes(t, dir, "audit.yml", `
routes:
  - id: audit
    from: direct:audit
    to:
      - log:audit
      - mock:audit
`)
	writeRoutes(t, dir, "README.txt", "not a route file")

	e, err := Load(dir, engine.WithConfig(test.NewConfig(&test.RecordingLogger{})))
	require.Nil(t, err)
	t.Cleanup(e.Stop)
	assert.Equal(t, 2, len(e.Routes()))
	require.Nil(t, e.Start())

	endpoint, err := e.GetEndpoint("rest:/orders?server=127.0.0.1:0")
	require.Nil(t, err)
	server, err := rest.AcquireServer(endpoint.(*rest.Endpoint).ServerConfig(), nil)
	require.Nil(t, err)
	defer rest.ReleaseServer(server)

	resp, err := http.Post("http://"+server.Addr()+"/orders", "application/json", strings.NewReader(`{"amount":1000}`))
	require.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"amount":1000}`, string(body))

	big, err := mock.Resolve(e, "mock:big")
	require.Nil(t, err)
	big.ExpectedBodiesReceived(`{"amount":1000}`)
	assert.Nil(t, big.AssertIsSatisfied(time.Second))

	_, err = e.ProducerTemplate().SendBody("direct:audit", "checked")
	require.Nil(t, err)
	audit, err := mock.Resolve(e, "mock:audit")
	require.Nil(t, err)
	assert.Equal(t, []string{"checked"}, audit.ReceivedBodies())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeRoutes(t, dir, "one.yaml", `
routes:
  - id: one
    from: direct:one
    to:
      - mock:one
`)
	writeRoutes(t, dir, "two.yaml", `
routes:
  - id: two
    from: direct:two
`)
	e, err := Load(filepath.Join(dir, "one.yaml"), engine.WithConfig(test.NewConfig(&test.RecordingLogger{})))
	require.Nil(t, err)
	t.Cleanup(e.Stop)
	routes := e.Routes()
	require.Equal(t, 1, len(routes))
	assert.Equal(t, "one", routes[0].Id)
}

func TestLoadFolderErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.NotNil(t, err)

	dir := t.TempDir()
	writeRoutes(t, dir, "broken.yaml", "routes:\n  - id: broken\n")
	_, err = Load(dir, engine.WithConfig(test.NewConfig(&test.RecordingLogger{})))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestNestedRecipientListWithSmallCache(t *testing.T) {
	e := New(engine.WithConfig(test.NewConfig(&test.RecordingLogger{})))
	t.Cleanup(e.Stop)
	require.Nil(t, e.Start())

	exchange, err := e.ProducerTemplate().SendBodyAndHeaders("recipient-list:Outer?cacheSize=1", "hi", map[string]string{
		"Outer": "recipient-list:Inner,mock:b",
		"Inner": "mock:c",
	})
	require.Nil(t, err)
	assert.Nil(t, exchange.Err)
	b, err := mock.Resolve(e, "mock:b")
	require.Nil(t, err)
	c, err := mock.Resolve(e, "mock:c")
	require.Nil(t, err)
	assert.Equal(t, 1, b.ReceivedCount())
	assert.Equal(t, 1, c.ReceivedCount())
}
