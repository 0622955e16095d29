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

package api

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/test"
	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store struct {
	lock  sync.Mutex
	items []string
}

func storeApi() *ApiCollection {
	items := MustNewApiMethodHelper("items", []*ApiMethod{
		{Name: "list", Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
			s := proxy.(*store)
			s.lock.Lock()
			defer s.lock.Unlock()
			return append([]string(nil), s.items...), nil
		}},
		{Name: "get", Args: []ApiMethodArg{{Name: "index", Type: cast.KindInt}},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				s := proxy.(*store)
				s.lock.Lock()
				defer s.lock.Unlock()
				i := args["index"].(int)
				if i >= len(s.items) {
					return nil, errors.New("no such item")
				}
				return s.items[i], nil
			}},
		{Name: "add", Args: []ApiMethodArg{{Name: "item", Type: cast.KindString}},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				s := proxy.(*store)
				s.lock.Lock()
				defer s.lock.Unlock()
				s.items = append(s.items, args["item"].(string))
				return &Result{
					Value:   map[string]any{"added": args["item"]},
					Headers: map[string]string{"StoreSize": strconv.Itoa(len(s.items))},
				}, nil
			}},
	})
	return NewApiCollection(items)
}

func newStoreEndpoint(t *testing.T, s *store, config EndpointConfiguration, params types.Configuration) *Endpoint {
	ctx := test.NewEngineContext(types.NewConfig())
	e, err := NewEndpoint(ctx, "store:"+config.ApiName+"/"+config.MethodName, config, params,
		storeApi(), NewApiMethodPropertiesHelper("Store."), s)
	require.Nil(t, err)
	return e
}

func process(t *testing.T, e *Endpoint, exchange *types.Exchange) error {
	producer, err := e.CreateProducer()
	require.Nil(t, err)
	require.Nil(t, producer.Start())
	defer producer.Stop()
	return producer.Process(exchange)
}

func TestProducerWithEndpointArguments(t *testing.T) {
	s := &store{items: []string{"a", "b"}}
	e := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "get"},
		types.Configuration{"index": "1", "unrelated": "x"})
	assert.Equal(t, map[string]any{"index": "1"}, e.Properties)

	ex := types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, process(t, e, ex))
	assert.Equal(t, "b", ex.In.Body)
	assert.Equal(t, types.TEXT, ex.In.DataType)
}

func TestProducerWithHeaderArguments(t *testing.T) {
	s := &store{items: []string{"a", "b"}}
	e := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "get", ResultHeader: "Item"}, nil)

	ex := types.NewExchangeWithBody(context.Background(), "keep")
	ex.In.Headers.PutValue("Store.index", "0")
	require.Nil(t, process(t, e, ex))
	assert.Equal(t, "a", ex.In.Headers.GetValue("Item"))
	assert.Equal(t, "keep", ex.In.Body)

	missing := types.NewExchangeWithBody(context.Background(), "")
	err := process(t, e, missing)
	var missingErr *MissingPropertiesError
	require.True(t, errors.As(err, &missingErr))
	assert.Equal(t, []string{"index"}, missingErr.Missing)
	assert.Equal(t, err, missing.Err)

	failing := types.NewExchangeWithBody(context.Background(), "")
	failing.In.Headers.PutValue("Store.index", "7")
	var runtimeErr *RuntimeError
	assert.True(t, errors.As(process(t, e, failing), &runtimeErr))
}

func TestProducerInBody(t *testing.T) {
	s := &store{}
	e := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "add", InBody: "item"}, nil)
	ex := types.NewExchangeWithBody(context.Background(), "c")
	require.Nil(t, process(t, e, ex))
	assert.Equal(t, `{"added":"c"}`, ex.In.Body)
	assert.Equal(t, types.JSON, ex.In.DataType)
	assert.Equal(t, "1", ex.In.Headers.GetValue("StoreSize"))
	assert.Equal(t, []string{"c"}, s.items)
}

func TestNewEndpointValidation(t *testing.T) {
	ctx := test.NewEngineContext(types.NewConfig())
	props := NewApiMethodPropertiesHelper("Store.")
	for name, config := range map[string]EndpointConfiguration{
		"no method":   {ApiName: "items"},
		"unknown api": {ApiName: "boxes", MethodName: "list"},
		"no overload": {ApiName: "items", MethodName: "remove"},
		"bad delay":   {ApiName: "items", MethodName: "list", Delay: -time.Second},
	} {
		_, err := NewEndpoint(ctx, "store:x", config, nil, storeApi(), props, &store{})
		assert.True(t, errors.Is(err, types.ErrIllegalArgument), name)
	}
	_, err := NewEndpoint(ctx, "store:x", EndpointConfiguration{ApiName: "items", MethodName: "list"},
		types.Configuration{"index": 1}, storeApi(), props, &store{})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))
}

func TestSplitMethodPath(t *testing.T) {
	apiName, methodName := SplitMethodPath("/table/retrieve")
	assert.Equal(t, "table", apiName)
	assert.Equal(t, "retrieve", methodName)
	apiName, methodName = SplitMethodPath("table")
	assert.Equal(t, "table", apiName)
	assert.Equal(t, "", methodName)
}

func TestConsumerPollSplitsResult(t *testing.T) {
	s := &store{items: []string{"a", "b", "c"}}
	e := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "list", SplitResult: true}, nil)
	collector := &test.Collector{}
	consumer, err := e.CreateConsumer(collector)
	require.Nil(t, err)
	assert.Equal(t, "list", consumer.(*Consumer).Method().Name)

	n, err := consumer.(*Consumer).Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, collector.Bodies())

	whole := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "list"}, nil)
	collector = &test.Collector{}
	consumer, err = whole.CreateConsumer(collector)
	require.Nil(t, err)
	n, err = consumer.(*Consumer).Poll(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{`["a","b","c"]`}, collector.Bodies())
}

func TestConsumerSchedule(t *testing.T) {
	s := &store{items: []string{"a"}}
	e := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "get", Schedule: "* * * * * *"},
		types.Configuration{"index": 0})
	collector := &test.Collector{}
	consumer, err := e.CreateConsumer(collector)
	require.Nil(t, err)
	require.Nil(t, consumer.Start())
	assert.Eventually(t, func() bool { return collector.Count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.Nil(t, consumer.Stop())
	assert.Equal(t, "a", collector.Bodies()[0])

	bad := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "list", Schedule: "every tuesday"}, nil)
	consumer, err = bad.CreateConsumer(collector)
	require.Nil(t, err)
	assert.True(t, errors.Is(consumer.Start(), types.ErrIllegalArgument))

	// the consumer needs every argument from the endpoint
	noIndex := newStoreEndpoint(t, s, EndpointConfiguration{ApiName: "items", MethodName: "get"}, nil)
	_, err = noIndex.CreateConsumer(collector)
	var missingErr *MissingPropertiesError
	assert.True(t, errors.As(err, &missingErr))
}
