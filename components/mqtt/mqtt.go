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


// Package mqtt publishes to and subscribes on mqtt brokers.
//
//	mqtt:sensors/${device}/temp?server=tcp://localhost:1883&qos=1
//
// Producers publish the message body to the topic, ${header} placeholders
// are replaced with message headers and the MqttOverrideTopic header
// replaces the topic. Consumers subscribe to the topic, wildcards included,
// and turn every publication into an exchange with the Mqtt* headers set.
//
// Endpoints with the same broker settings share one connection.
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/maps"
	"github.com/rulego/rulego-connectors/utils/mqtt"
	"github.com/rulego/rulego-connectors/utils/str"
)

const Type = "mqtt"

// Message headers.
const (
	HeaderTopic         = "MqttTopic"
	HeaderQos           = "MqttQos"
	HeaderRetained      = "MqttRetained"
	HeaderMessageId     = "MqttMessageId"
	HeaderOverrideTopic = "MqttOverrideTopic"
)

// Client is the broker connection used by endpoints.
type Client interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Subscribe(handler mqtt.Handler) error
	Unsubscribe(topic string) error
	Close() error
}

// ClientFactory connects to a broker.
type ClientFactory func(ctx context.Context, config mqtt.Config, logger types.Logger) (Client, error)

// DefaultClientFactory connects with paho.
func DefaultClientFactory(ctx context.Context, config mqtt.Config, logger types.Logger) (Client, error) {
	return mqtt.NewClient(ctx, config, logger)
}

// Configuration of an mqtt endpoint.
type Configuration struct {
	mqtt.Config `mapstructure:",squash"`
	Qos         byte
	Retained    bool
	// ConnectTimeout bounds connection retries on start.
	ConnectTimeout time.Duration
}

var _ types.Component = (*Component)(nil)

// Component shares broker connections between its endpoints.
type Component struct {
	base.Component
	// NewClient connects to brokers, DefaultClientFactory when nil.
	NewClient ClientFactory

	lock    sync.Mutex
	clients map[mqtt.Config]*sharedClient
}

type sharedClient struct {
	client Client
	refs   int
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{NewClient: c.NewClient}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.clients = make(map[mqtt.Config]*sharedClient)
	if c.NewClient == nil {
		c.NewClient = DefaultClientFactory
	}
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	if remaining == "" {
		return nil, fmt.Errorf("%w: mqtt topic is required, uri=%s", types.ErrIllegalArgument, uri)
	}
	config := Configuration{ConnectTimeout: 10 * time.Second}
	if err := maps.Map2Struct(c.Configuration, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Qos > 2 {
		return nil, fmt.Errorf("%w: qos must be 0, 1 or 2", types.ErrIllegalArgument)
	}
	return &Endpoint{Endpoint: base.NewEndpoint(uri), Topic: remaining, Config: config, component: c}, nil
}

func (c *Component) acquire(config Configuration) (Client, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if shared, ok := c.clients[config.Config]; ok {
		shared.refs++
		return shared.client, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	client, err := c.NewClient(ctx, config.Config, c.Logger())
	if err != nil {
		return nil, err
	}
	c.clients[config.Config] = &sharedClient{client: client, refs: 1}
	return client, nil
}

func (c *Component) release(config Configuration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	shared, ok := c.clients[config.Config]
	if !ok {
		return
	}
	if shared.refs--; shared.refs <= 0 {
		delete(c.clients, config.Config)
		_ = shared.client.Close()
	}
}

func (c *Component) Destroy() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for key, shared := range c.clients {
		_ = shared.client.Close()
		delete(c.clients, key)
	}
}

// Endpoint is one topic on one broker.
type Endpoint struct {
	base.Endpoint
	Topic     string
	Config    Configuration
	component *Component
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{endpoint: e}, nil
}

func (e *Endpoint) CreateConsumer(processor types.Processor) (types.Consumer, error) {
	c := &Consumer{endpoint: e}
	c.ConsumerEndpoint = e
	c.Processor = processor
	return c, nil
}

// Producer publishes message bodies.
type Producer struct {
	endpoint *Endpoint
	lock     sync.RWMutex
	client   Client
}

func (p *Producer) Endpoint() types.Endpoint {
	return p.endpoint
}

func (p *Producer) Start() error {
	client, err := p.endpoint.component.acquire(p.endpoint.Config)
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.client = client
	p.lock.Unlock()
	return nil
}

func (p *Producer) Stop() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.client != nil {
		p.client = nil
		p.endpoint.component.release(p.endpoint.Config)
	}
	return nil
}

func (p *Producer) Process(exchange *types.Exchange) error {
	p.lock.RLock()
	client := p.client
	p.lock.RUnlock()
	if client == nil {
		exchange.Err = fmt.Errorf("%w: producer of %s is not started", types.ErrIllegalArgument, p.endpoint.Uri())
		return exchange.Err
	}
	headers := exchange.In.Headers
	topic := p.endpoint.Topic
	if v := headers.GetValue(HeaderOverrideTopic); v != "" {
		topic = v
	}
	if str.CheckHasVar(topic) {
		topic = str.SprintfDict(topic, headers)
	}
	config := p.endpoint.Config
	if err := client.Publish(exchange.Ctx(), topic, config.Qos, config.Retained, []byte(exchange.In.Body)); err != nil {
		exchange.Err = fmt.Errorf("publish %s: %w", topic, err)
		return exchange.Err
	}
	headers.PutValue(HeaderTopic, topic)
	return nil
}

// Consumer turns publications into exchanges.
type Consumer struct {
	base.Consumer
	endpoint *Endpoint
	client   Client
}

func (c *Consumer) Start() error {
	e := c.endpoint
	client, err := e.component.acquire(e.Config)
	if err != nil {
		return err
	}
	c.Reset()
	if err := client.Subscribe(mqtt.Handler{Topic: e.Topic, Qos: e.Config.Qos, Handle: c.onMessage}); err != nil {
		e.component.release(e.Config)
		return err
	}
	c.client = client
	return nil
}

func (c *Consumer) Stop() error {
	if c.client == nil {
		return nil
	}
	e := c.endpoint
	if err := c.client.Unsubscribe(e.Topic); err != nil {
		types.Warnf(e.component.Logger(), "unsubscribe %s: %v", e.Topic, err)
	}
	c.Shutdown(base.DefaultShutdownTimeout)
	e.component.release(e.Config)
	c.client = nil
	return nil
}

func (c *Consumer) onMessage(m mqtt.Message) {
	headers := types.NewHeaders()
	headers.PutValue(HeaderTopic, m.Topic)
	headers.PutValue(HeaderQos, strconv.Itoa(int(m.Qos)))
	headers.PutValue(HeaderRetained, strconv.FormatBool(m.Retained))
	headers.PutValue(HeaderMessageId, strconv.Itoa(int(m.MessageId)))
	exchange := types.NewExchange(context.Background(), types.NewMessage("", types.TEXT, headers, string(m.Payload)))
	if err := c.Handle(exchange); err != nil {
		types.Errorf(c.endpoint.component.Logger(), "mqtt %s: %v", m.Topic, err)
	}
}
