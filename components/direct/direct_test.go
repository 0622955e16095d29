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

package direct

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComponent(t *testing.T) *Component {
	c := &Component{}
	require.Nil(t, c.Init(test.NewEngineContext(types.NewConfig()), nil))
	return c
}

func TestDirectHandOff(t *testing.T) {
	c := newComponent(t)
	endpoint, err := c.CreateEndpoint("direct:a", "a", nil)
	require.Nil(t, err)

	collector := &test.Collector{Reply: func(body string) (string, error) { return body + "!", nil }}
	consumer, err := endpoint.CreateConsumer(collector)
	require.Nil(t, err)
	producer, err := endpoint.CreateProducer()
	require.Nil(t, err)

	ex := types.NewExchangeWithBody(context.Background(), "hi")
	assert.True(t, errors.Is(producer.Process(ex), types.ErrNoConsumer))

	require.Nil(t, consumer.Start())
	ex = types.NewExchangeWithBody(context.Background(), "hi")
	require.Nil(t, producer.Process(ex))
	assert.Equal(t, "hi!", ex.In.Body)
	assert.Equal(t, "direct:a", ex.FromEndpoint)

	other, _ := endpoint.CreateConsumer(collector)
	assert.True(t, errors.Is(other.Start(), types.ErrIllegalArgument))

	require.Nil(t, consumer.Stop())
	assert.True(t, errors.Is(producer.Process(ex), types.ErrNoConsumer))
}

func TestDirectBlockWaitsForConsumer(t *testing.T) {
	c := newComponent(t)
	endpoint, err := c.CreateEndpoint("direct:b?block=true&timeout=2s", "b", types.Configuration{"block": "true", "timeout": "2s"})
	require.Nil(t, err)
	producer, _ := endpoint.CreateProducer()
	collector := &test.Collector{}
	consumer, _ := endpoint.CreateConsumer(collector)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = consumer.Start()
	}()
	require.Nil(t, producer.Process(types.NewExchangeWithBody(context.Background(), "late")))
	assert.Equal(t, []string{"late"}, collector.Bodies())

	timeout, _ := c.CreateEndpoint("direct:c?block=true&timeout=20ms", "c", types.Configuration{"block": true, "timeout": "20ms"})
	p, _ := timeout.CreateProducer()
	assert.True(t, errors.Is(p.Process(types.NewExchangeWithBody(context.Background(), "x")), types.ErrNoConsumer))
}

func TestDirectRequiresName(t *testing.T) {
	c := newComponent(t)
	_, err := c.CreateEndpoint("direct:", "", nil)
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))
}
