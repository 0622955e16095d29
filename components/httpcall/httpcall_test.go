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


package httpcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	uri    string
	body   string
	header http.Header
}

type recorder struct {
	lock     sync.Mutex
	requests []recorded
}

func (r *recorder) add(req recorded) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorder) get(i int) recorded {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.requests[i]
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.requests)
}

func newServer(t *testing.T) (*httptest.Server, *recorder) {
	requests := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requests.add(recorded{method: r.Method, uri: r.URL.RequestURI(), body: string(b), header: r.Header.Clone()})
		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such order"))
		case strings.HasPrefix(r.URL.Path, "/events"):
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, ": comment\nevent: tick\ndata: one\n\ndata: two\n\n")
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Served-By", "test")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func newProducer(t *testing.T, scheme, uri string, params types.Configuration) types.Producer {
	ctx := test.NewEngineContext(types.NewConfig())
	c := New(scheme)
	require.Nil(t, ctx.AddComponent(c, nil))
	remaining := strings.TrimPrefix(uri, scheme+":")
	endpoint, err := c.CreateEndpoint(uri, remaining, params)
	require.Nil(t, err)
	producer, err := endpoint.CreateProducer()
	require.Nil(t, err)
	return producer
}

func TestPostBody(t *testing.T) {
	server, requests := newServer(t)
	producer := newProducer(t, TypeHttp, server.URL+"/orders", types.Configuration{"timeout": "2s", "verbose": "true"})

	exchange := types.NewExchangeWithBody(context.Background(), `{"qty":1}`)
	exchange.In.DataType = types.JSON
	exchange.In.Headers.PutValue("X-Tenant", "acme")
	exchange.In.Headers.PutValue("DynamicRouterRecipientList", "http:x")
	require.Nil(t, producer.Process(exchange))

	require.Equal(t, 1, requests.count())
	req := requests.get(0)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/orders?verbose=true", req.uri)
	assert.Equal(t, `{"qty":1}`, req.body)
	assert.Equal(t, "acme", req.header.Get("X-Tenant"))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, "", req.header.Get("DynamicRouterRecipientList"))

	assert.Equal(t, `{"ok":true}`, exchange.In.Body)
	assert.Equal(t, types.JSON, exchange.In.DataType)
	assert.Equal(t, "200", exchange.In.Headers.GetValue(HeaderResponseCode))
	assert.Equal(t, "OK", exchange.In.Headers.GetValue(HeaderResponseText))
	assert.Equal(t, "test", exchange.In.Headers.GetValue("X-Served-By"))
	assert.Equal(t, "acme", exchange.In.Headers.GetValue("X-Tenant"))
}

func TestRequestLineHeaders(t *testing.T) {
	server, requests := newServer(t)
	producer := newProducer(t, TypeHttp, server.URL+"/orders/${orderId}", types.Configuration{})

	exchange := types.NewExchangeWithBody(context.Background(), "")
	exchange.In.Headers.PutValue("orderId", "42")
	require.Nil(t, producer.Process(exchange))
	assert.Equal(t, http.MethodGet, requests.get(0).method)
	assert.Equal(t, "/orders/42", requests.get(0).uri)

	exchange = types.NewExchangeWithBody(context.Background(), "")
	exchange.In.Headers.PutValue("orderId", "7")
	exchange.In.Headers.PutValue("HttpMethod", "delete")
	exchange.In.Headers.PutValue("HttpPath", "items")
	exchange.In.Headers.PutValue("HttpQuery", "force=true")
	require.Nil(t, producer.Process(exchange))
	assert.Equal(t, http.MethodDelete, requests.get(1).method)
	assert.Equal(t, "/orders/7/items?force=true", requests.get(1).uri)
	assert.Equal(t, "", exchange.In.Headers.GetValue("HttpPath"))

	bridge := newProducer(t, TypeHttp, server.URL+"/upstream", types.Configuration{"bridgeEndpoint": "true", "httpMethod": "put"})
	exchange = types.NewExchangeWithBody(context.Background(), "data")
	exchange.In.Headers.PutValue("HttpPath", "/orders/1")
	exchange.In.Headers.PutValue("HttpUri", "http://elsewhere.invalid/x")
	require.Nil(t, bridge.Process(exchange))
	assert.Equal(t, http.MethodPut, requests.get(2).method)
	assert.Equal(t, "/upstream", requests.get(2).uri)
}

func TestFailureReply(t *testing.T) {
	server, _ := newServer(t)
	producer := newProducer(t, TypeHttp, server.URL+"/missing", types.Configuration{})
	exchange := types.NewExchangeWithBody(context.Background(), "")
	err := producer.Process(exchange)
	var failed *OperationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, http.StatusNotFound, failed.StatusCode)
	assert.Equal(t, "no such order", failed.Body)
	assert.Equal(t, err, exchange.Err)
	assert.Equal(t, "404", exchange.In.Headers.GetValue(HeaderResponseCode))
	assert.Equal(t, "no such order", exchange.In.Headers.GetValue(HeaderErrorBody))

	lenient := newProducer(t, TypeHttp, server.URL+"/missing", types.Configuration{"throwExceptionOnFailure": "false"})
	exchange = types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, lenient.Process(exchange))
	assert.Equal(t, "no such order", exchange.In.Body)
	assert.Equal(t, "Not Found", exchange.In.Headers.GetValue(HeaderResponseText))
}

func TestEventStream(t *testing.T) {
	server, _ := newServer(t)
	producer := newProducer(t, TypeHttp, server.URL+"/events", types.Configuration{})
	exchange := types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, producer.Process(exchange))
	assert.Equal(t, "one\ntwo", exchange.In.Body)
}

func TestHttps(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer server.Close()
	producer := newProducer(t, TypeHttps, server.URL, types.Configuration{"insecureSkipVerify": "true"})
	exchange := types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, producer.Process(exchange))
	assert.Equal(t, "secure", exchange.In.Body)
	assert.Equal(t, types.TEXT, exchange.In.DataType)

	strict := newProducer(t, TypeHttps, server.URL, types.Configuration{})
	assert.NotNil(t, strict.Process(types.NewExchangeWithBody(context.Background(), "")))
}

func TestEndpointValidation(t *testing.T) {
	ctx := test.NewEngineContext(types.NewConfig())
	c := New(TypeHttp)
	require.Nil(t, ctx.AddComponent(c, nil))
	_, err := c.CreateEndpoint("http:", "", types.Configuration{})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))
	_, err = c.CreateEndpoint("http://h", "//h", types.Configuration{"timeout": "soon"})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))

	e, err := c.CreateEndpoint("http:example.com/a", "example.com/a", types.Configuration{"q": "1"})
	require.Nil(t, err)
	assert.Equal(t, "http://example.com/a?q=1", e.(*Endpoint).Address)
	_, err = e.CreateConsumer(nil)
	assert.Equal(t, types.ErrConsumerNotSupported, err)

	other, err := c.CreateEndpoint("http://example.com/b", "//example.com/b", types.Configuration{})
	require.Nil(t, err)
	assert.Same(t, e.(*Endpoint).client, other.(*Endpoint).client)
}
