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


package websocket

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComponent(t *testing.T) *Component {
	ctx := test.NewEngineContext(types.NewConfig())
	c := &Component{}
	require.Nil(t, ctx.AddComponent(c, nil))
	return c
}

func startConsumer(t *testing.T, c *Component, remaining string, params types.Configuration, processor types.Processor) *Consumer {
	params["server"] = "127.0.0.1:0"
	endpoint, err := c.CreateEndpoint("ws:"+remaining, remaining, params)
	require.Nil(t, err)
	consumer, err := endpoint.CreateConsumer(processor)
	require.Nil(t, err)
	require.Nil(t, consumer.Start())
	t.Cleanup(func() { _ = consumer.Stop() })
	return consumer.(*Consumer)
}

func dial(t *testing.T, consumer *Consumer, path string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+consumer.Server().Addr()+path, nil)
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (int, string) {
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.Nil(t, err)
	return mt, string(data)
}

func TestFrameReply(t *testing.T) {
	c := newComponent(t)
	var seen types.Message
	consumer := startConsumer(t, c, "/chat/:room", types.Configuration{}, types.ProcessorFunc(func(exchange *types.Exchange) error {
		seen = exchange.In.Copy()
		if exchange.In.Body == "fail" {
			return errors.New("bad frame")
		}
		if exchange.In.Body == "quiet" {
			exchange.In.Body = ""
			return nil
		}
		exchange.In.Body = strings.ToUpper(exchange.In.Body)
		return nil
	}))
	conn := dial(t, consumer, "/chat/lobby?user=ann")

	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	mt, reply := read(t, conn)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "HELLO", reply)
	assert.Equal(t, "lobby", seen.Headers.GetValue("room"))
	assert.Equal(t, "ann", seen.Headers.GetValue("user"))
	assert.Equal(t, "text", seen.Headers.GetValue(HeaderMessageType))
	assert.Equal(t, "GET", seen.Headers.GetValue("HttpMethod"))
	assert.NotEqual(t, "", seen.Headers.GetValue(HeaderConnectionKey))

	require.Nil(t, conn.WriteMessage(websocket.BinaryMessage, []byte("bin")))
	mt, reply = read(t, conn)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "BIN", reply)
	assert.Equal(t, types.BINARY, seen.DataType)

	// an empty result sends nothing, the next reply is for "fail"
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("quiet")))
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	_, reply = read(t, conn)
	assert.Equal(t, "bad frame", reply)
}

func TestMuteExceptions(t *testing.T) {
	c := newComponent(t)
	consumer := startConsumer(t, c, "/mute", types.Configuration{"muteExceptions": "true"}, types.ProcessorFunc(func(exchange *types.Exchange) error {
		if exchange.In.Body == "fail" {
			return errors.New("bad frame")
		}
		return nil
	}))
	conn := dial(t, consumer, "/mute")
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("ok")))
	_, reply := read(t, conn)
	assert.Equal(t, "ok", reply)
}

func TestProducer(t *testing.T) {
	c := newComponent(t)
	consumer := startConsumer(t, c, "/news", types.Configuration{}, types.ProcessorFunc(func(exchange *types.Exchange) error {
		exchange.In.Body = exchange.In.Headers.GetValue(HeaderConnectionKey)
		return nil
	}))
	a := dial(t, consumer, "/news")
	b := dial(t, consumer, "/news")
	assert.Eventually(t, func() bool { return len(consumer.Connections()) == 2 }, 3*time.Second, 10*time.Millisecond)

	require.Nil(t, a.WriteMessage(websocket.TextMessage, []byte("who am i")))
	_, keyA := read(t, a)

	endpoint, err := c.CreateEndpoint("ws:/news", "/news", types.Configuration{"server": "127.0.0.1:0"})
	require.Nil(t, err)
	producer, err := endpoint.CreateProducer()
	require.Nil(t, err)

	exchange := types.NewExchangeWithBody(context.Background(), "just for a")
	exchange.In.Headers.PutValue(HeaderConnectionKey, keyA)
	require.Nil(t, producer.Process(exchange))
	_, got := read(t, a)
	assert.Equal(t, "just for a", got)

	exchange = types.NewExchangeWithBody(context.Background(), "nobody")
	assert.True(t, errors.Is(producer.Process(exchange), types.ErrIllegalArgument))
	exchange.In.Headers.PutValue(HeaderConnectionKey, "gone")
	assert.True(t, errors.Is(producer.Process(exchange), ErrConnectionNotFound))

	broadcast, err := c.CreateEndpoint("ws:/news?sendToAll=true", "/news", types.Configuration{"server": "127.0.0.1:0", "sendToAll": "true"})
	require.Nil(t, err)
	producer, err = broadcast.CreateProducer()
	require.Nil(t, err)
	require.Nil(t, producer.Process(types.NewExchangeWithBody(context.Background(), "all")))
	_, got = read(t, a)
	assert.Equal(t, "all", got)
	_, got = read(t, b)
	assert.Equal(t, "all", got)

	require.Nil(t, consumer.Stop())
	assert.True(t, errors.Is(producer.Process(types.NewExchangeWithBody(context.Background(), "late")), types.ErrNoConsumer))
}

func TestCheckOrigin(t *testing.T) {
	c := newComponent(t)
	consumer := startConsumer(t, c, "/private", types.Configuration{"allowedOrigins": "http://good.example"}, types.ProcessorFunc(func(exchange *types.Exchange) error {
		return nil
	}))
	url := "ws://" + consumer.Server().Addr() + "/private"
	_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"http://evil.example"}})
	assert.NotNil(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"http://good.example"}})
	require.Nil(t, err)
	_ = conn.Close()
}

func TestConsumerValidation(t *testing.T) {
	c := newComponent(t)
	_, err := c.CreateEndpoint("ws:", "", types.Configuration{})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))

	startConsumer(t, c, "/dup", types.Configuration{}, types.ProcessorFunc(func(exchange *types.Exchange) error { return nil }))
	endpoint, err := c.CreateEndpoint("ws:/dup", "/dup", types.Configuration{"server": "127.0.0.1:0"})
	require.Nil(t, err)
	dup, err := endpoint.CreateConsumer(types.ProcessorFunc(func(exchange *types.Exchange) error { return nil }))
	require.Nil(t, err)
	assert.True(t, errors.Is(dup.Start(), types.ErrIllegalArgument))
}
