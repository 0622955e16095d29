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


// Package mqtt wraps a paho client for the mqtt connector: connection with
// retry, subscriptions restored on reconnect, and publishing with a context.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/str"
)

// Message is a received publication.
type Message struct {
	Topic     string
	Payload   []byte
	Qos       byte
	Retained  bool
	MessageId uint16
}

// Handler receives the messages of a subscription.
type Handler struct {
	Topic string
	Qos   byte
	// Handle runs on the paho router goroutine.
	Handle func(msg Message)
}

// Config of a broker connection.
type Config struct {
	// Server is the broker url, for example tcp://localhost:1883.
	Server   string
	Username string
	Password string
	// MaxReconnectInterval caps the backoff of automatic reconnects.
	MaxReconnectInterval time.Duration
	CleanSession         bool
	// ClientId is generated when empty.
	ClientId    string
	CAFile      string
	CertFile    string
	CertKeyFile string
}

// Validate checks the broker url.
func (c Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("%w: mqtt server is required", types.ErrIllegalArgument)
	}
	u, err := url.Parse(c.Server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid mqtt server %q", types.ErrIllegalArgument, c.Server)
	}
	return nil
}

// Client is a connected broker client.
type Client struct {
	lock     sync.RWMutex
	client   paho.Client
	handlers map[string]Handler
	logger   types.Logger
}

// NewClient connects to the broker, retrying every 2s until ctx is done.
func NewClient(ctx context.Context, conf Config, logger types.Logger) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	c := &Client{handlers: make(map[string]Handler), logger: logger}
	opts, err := c.options(conf)
	if err != nil {
		return nil, err
	}
	c.client = paho.NewClient(opts)
	for {
		token := c.client.Connect()
		if token.Wait() && token.Error() == nil {
			return c, nil
		}
		types.Warnf(logger, "connecting to mqtt broker %s failed, will retry in 2s: %v", conf.Server, token.Error())
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect %s: %w", conf.Server, errors.Join(token.Error(), ctx.Err()))
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Client) options(conf Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	if conf.ClientId == "" {
		opts.SetClientID("rulego/" + str.RandomStr(8))
	} else {
		opts.SetClientID(conf.ClientId)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		types.Infof(c.logger, "connected to mqtt broker %s", conf.Server)
		c.resubscribe()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, reason error) {
		types.Warnf(c.logger, "lost mqtt connection to %s: %v", conf.Server, reason)
	})
	if conf.MaxReconnectInterval <= 0 {
		conf.MaxReconnectInterval = time.Minute
	}
	opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)
	tlsConfig, err := NewTLSConfig(conf.CAFile, conf.CertFile, conf.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading mqtt certificate files: %s", types.ErrIllegalArgument, err)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

// Subscribe registers handler and subscribes its topic. The subscription is
// restored after reconnects.
func (c *Client) Subscribe(handler Handler) error {
	c.lock.Lock()
	c.handlers[handler.Topic] = handler
	c.lock.Unlock()
	return c.subscribe(handler)
}

// Unsubscribe removes the handler of topic.
func (c *Client) Unsubscribe(topic string) error {
	c.lock.Lock()
	_, ok := c.handlers[topic]
	delete(c.handlers, topic)
	c.lock.Unlock()
	if !ok {
		return nil
	}
	token := c.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Publish sends payload and waits for the broker acknowledgement of qos.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes every topic and disconnects.
func (c *Client) Close() error {
	c.lock.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.handlers = make(map[string]Handler)
	c.lock.Unlock()
	if len(topics) > 0 && c.client.IsConnected() {
		c.client.Unsubscribe(topics...).WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	return nil
}

func (c *Client) resubscribe() {
	c.lock.RLock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.lock.RUnlock()
	for _, h := range handlers {
		if err := c.subscribe(h); err != nil {
			types.Errorf(c.logger, "resubscribe %s: %v", h.Topic, err)
		}
	}
}

func (c *Client) subscribe(handler Handler) error {
	token := c.client.Subscribe(handler.Topic, handler.Qos, func(_ paho.Client, m paho.Message) {
		handler.Handle(Message{
			Topic:     m.Topic(),
			Payload:   m.Payload(),
			Qos:       m.Qos(),
			Retained:  m.Retained(),
			MessageId: m.MessageID(),
		})
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	if st, ok := token.(*paho.SubscribeToken); ok && isRejected(st, handler.Topic) {
		return fmt.Errorf("subscription to %s rejected by broker", handler.Topic)
	}
	return nil
}

// isRejected reports a 128 suback, usually an acl denial.
func isRejected(token *paho.SubscribeToken, topic string) bool {
	result, ok := token.Result()[topic]
	return ok && result == 128
}

// NewTLSConfig loads the ca and client certificates. It returns nil when no
// file is set.
func NewTLSConfig(caFile, certFile, certKeyFile string) (*tls.Config, error) {
	if caFile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificate found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}
	if certFile != "" || certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}
	return tlsConfig, nil
}
