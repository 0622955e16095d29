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


// Package websocket exposes routes over websocket connections.
//
//	ws:/chat?server=:9090
//
// The consumer upgrades GET requests on the path, sharing the http server of
// rest consumers on the same address. Every text or binary frame becomes an
// exchange carrying the headers of the upgrade request, and a non-empty
// result body is written back on the same connection.
//
// A producer on the same uri sends the body to the connection named by the
// WebSocketConnectionKey header, or to every connection with sendToAll=true.
package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/components/rest"
	"github.com/rulego/rulego-connectors/utils/maps"
	"github.com/rulego/rulego-connectors/utils/str"
)

const Type = "ws"

// Message headers.
const (
	// HeaderMessageType is text or binary.
	HeaderMessageType = "WebSocketMessageType"
	// HeaderConnectionKey identifies the connection a frame came from.
	HeaderConnectionKey = "WebSocketConnectionKey"
)

var ErrConnectionNotFound = errors.New("websocket connection not found")

var _ types.Component = (*Component)(nil)

// Configuration of a websocket endpoint.
type Configuration struct {
	Server      string
	CertFile    string
	CertKeyFile string
	// MuteExceptions writes nothing back for failed exchanges instead of
	// the error text.
	MuteExceptions bool
	// AllowedOrigins is a comma separated list of origins allowed to
	// connect. Every origin is allowed when empty.
	AllowedOrigins  string
	ReadBufferSize  int
	WriteBufferSize int
	// SendToAll makes producers broadcast to every connection.
	SendToAll bool
}

// Component keeps the started consumers so producers can reach their
// connections.
type Component struct {
	base.Component
	lock      sync.RWMutex
	consumers map[string]*Consumer
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.consumers = make(map[string]*Consumer)
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	config := Configuration{Server: rest.DefaultServer}
	if err := maps.Map2Struct(c.Configuration, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	path, err := rest.NormalizePath(remaining)
	if err != nil {
		return nil, err
	}
	return &Endpoint{Endpoint: base.NewEndpoint(uri), Path: path, Config: config, component: c}, nil
}

func (c *Component) register(key string, consumer *Consumer) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if existing, ok := c.consumers[key]; ok && existing != consumer {
		return fmt.Errorf("%w: %s is already consumed", types.ErrIllegalArgument, key)
	}
	c.consumers[key] = consumer
	return nil
}

func (c *Component) unregister(key string, consumer *Consumer) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.consumers[key] == consumer {
		delete(c.consumers, key)
	}
}

func (c *Component) consumer(key string) *Consumer {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.consumers[key]
}

// Endpoint is one websocket path on one server.
type Endpoint struct {
	base.Endpoint
	Path      string
	Config    Configuration
	component *Component
}

func (e *Endpoint) key() string {
	return e.Config.Server + " " + e.Path
}

func (e *Endpoint) CreateConsumer(processor types.Processor) (types.Consumer, error) {
	c := &Consumer{endpoint: e, conns: make(map[string]*connection)}
	c.ConsumerEndpoint = e
	c.Processor = processor
	c.upgrader = websocket.Upgrader{
		ReadBufferSize:  e.Config.ReadBufferSize,
		WriteBufferSize: e.Config.WriteBufferSize,
		CheckOrigin:     checkOrigin(str.SplitAndTrim(e.Config.AllowedOrigins, ",")),
	}
	return c, nil
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{Producer: base.Producer{ProducerEndpoint: e}, endpoint: e}, nil
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(origins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// connection serialises writes, gorilla connections allow one writer.
type connection struct {
	key  string
	conn *websocket.Conn
	lock sync.Mutex
}

func (c *connection) write(messageType int, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Consumer accepts connections and turns frames into exchanges.
type Consumer struct {
	base.Consumer
	endpoint *Endpoint
	upgrader websocket.Upgrader
	server   *rest.Server

	lock  sync.RWMutex
	conns map[string]*connection
}

// Server returns the server while the consumer is started.
func (c *Consumer) Server() *rest.Server {
	return c.server
}

// Connections returns the keys of the open connections.
func (c *Consumer) Connections() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	keys := make([]string, 0, len(c.conns))
	for k := range c.conns {
		keys = append(keys, k)
	}
	return keys
}

func (c *Consumer) Start() error {
	e := c.endpoint
	if err := e.component.register(e.key(), c); err != nil {
		return err
	}
	serverConfig := rest.ServerConfig{Addr: e.Config.Server, CertFile: e.Config.CertFile, CertKeyFile: e.Config.CertKeyFile}
	server, err := rest.AcquireServer(serverConfig, e.component.Logger())
	if err != nil {
		e.component.unregister(e.key(), c)
		return err
	}
	c.Reset()
	if err := server.Handle(http.MethodGet, e.Path, http.HandlerFunc(c.serveHTTP)); err != nil {
		rest.ReleaseServer(server)
		e.component.unregister(e.key(), c)
		return err
	}
	c.server = server
	return nil
}

func (c *Consumer) Stop() error {
	if c.server == nil {
		return nil
	}
	e := c.endpoint
	c.server.Remove(http.MethodGet, e.Path)
	e.component.unregister(e.key(), c)
	c.lock.Lock()
	for key, conn := range c.conns {
		_ = conn.conn.Close()
		delete(c.conns, key)
	}
	c.lock.Unlock()
	c.Shutdown(base.DefaultShutdownTimeout)
	rest.ReleaseServer(c.server)
	c.server = nil
	return nil
}

func (c *Consumer) connection(key string) *connection {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.conns[key]
}

func (c *Consumer) all() []*connection {
	c.lock.RLock()
	defer c.lock.RUnlock()
	conns := make([]*connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (c *Consumer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	logger := c.endpoint.component.Logger()
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		types.Warnf(logger, "websocket upgrade %s: %v", r.URL.Path, err)
		return
	}
	uuId, _ := uuid.NewV4()
	conn := &connection{key: uuId.String(), conn: ws}
	c.lock.Lock()
	c.conns[conn.key] = conn
	c.lock.Unlock()
	types.Debugf(logger, "websocket %s connected %s", r.URL.Path, conn.key)
	defer func() {
		c.lock.Lock()
		delete(c.conns, conn.key)
		c.lock.Unlock()
		_ = ws.Close()
		types.Debugf(logger, "websocket %s disconnected %s", r.URL.Path, conn.key)
	}()
	headers := rest.RequestHeaders(r)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.onFrame(r, conn, headers, mt, data)
	}
}

func (c *Consumer) onFrame(r *http.Request, conn *connection, headers types.Headers, mt int, data []byte) {
	msgHeaders := headers.Copy()
	msgHeaders.PutValue(HeaderConnectionKey, conn.key)
	dataType := types.TEXT
	msgHeaders.PutValue(HeaderMessageType, "text")
	if mt == websocket.BinaryMessage {
		dataType = types.BINARY
		msgHeaders.PutValue(HeaderMessageType, "binary")
	}
	exchange := types.NewExchange(r.Context(), types.NewMessage("", dataType, msgHeaders, string(data)))
	if err := c.Handle(exchange); err != nil && exchange.Err == nil {
		exchange.Err = err
	}
	var reply string
	if exchange.Err != nil {
		types.Warnf(c.endpoint.component.Logger(), "websocket %s frame failed: %v", r.URL.Path, exchange.Err)
		if c.endpoint.Config.MuteExceptions {
			return
		}
		reply = exchange.Err.Error()
	} else {
		reply = exchange.In.Body
	}
	if reply == "" {
		return
	}
	if err := conn.write(mt, []byte(reply)); err != nil {
		types.Warnf(c.endpoint.component.Logger(), "websocket %s write: %v", r.URL.Path, err)
	}
}

// Producer writes bodies to connections of the consumer of its endpoint.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	e := p.endpoint
	consumer := e.component.consumer(e.key())
	if consumer == nil {
		exchange.Err = fmt.Errorf("%w: %s", types.ErrNoConsumer, e.Uri())
		return exchange.Err
	}
	mt := websocket.TextMessage
	if exchange.In.DataType == types.BINARY || exchange.In.Headers.GetValue(HeaderMessageType) == "binary" {
		mt = websocket.BinaryMessage
	}
	var targets []*connection
	if key := exchange.In.Headers.GetValue(HeaderConnectionKey); key != "" && !e.Config.SendToAll {
		conn := consumer.connection(key)
		if conn == nil {
			exchange.Err = fmt.Errorf("%w: %s", ErrConnectionNotFound, key)
			return exchange.Err
		}
		targets = append(targets, conn)
	} else if e.Config.SendToAll {
		targets = consumer.all()
	} else {
		exchange.Err = fmt.Errorf("%w: %s header is required without sendToAll", types.ErrIllegalArgument, HeaderConnectionKey)
		return exchange.Err
	}
	var errs []error
	for _, conn := range targets {
		if err := conn.write(mt, []byte(exchange.In.Body)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", conn.key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		exchange.Err = err
		return err
	}
	return nil
}
