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


// Package rest exposes routes over http.
//
//	rest:/orders/:id?server=:9090&method=GET,POST
//
// Every request becomes an exchange. Path parameters, query parameters and
// http headers are copied to message headers together with HttpMethod,
// HttpUri, HttpPath and HttpQuery. The resulting message is the reply, with
// its status taken from the HttpResponseCode header.
//
// Consumers on the same server address share one http server. Optional
// CORS handling and basic auth with bcrypt password hashes are enabled per
// endpoint.
package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/maps"
	"github.com/rulego/rulego-connectors/utils/str"
	"golang.org/x/crypto/bcrypt"
)

const Type = "rest"

const DefaultServer = ":9090"

var _ types.Component = (*Component)(nil)

// Configuration of a rest endpoint. Component properties are defaults for
// every endpoint.
type Configuration struct {
	// Server is the listen address.
	Server string
	// Method is a comma separated list of http methods. POST by default.
	Method      string
	CertFile    string
	CertKeyFile string
	// MuteExceptions answers failed exchanges with an empty 500 reply.
	MuteExceptions bool
	// AllowCors enables CORS handling for AllowedOrigins, every origin when
	// empty.
	AllowCors      bool
	AllowedOrigins string
	// BasicAuth is a comma separated list of user:bcryptHash pairs, or a
	// #reference to a map[string]string of user to bcrypt hash.
	BasicAuth string
	// Realm is sent with basic auth challenges.
	Realm string
}

func (c *Configuration) methods() []string {
	var methods []string
	for _, m := range str.SplitAndTrim(c.Method, ",") {
		methods = append(methods, strings.ToUpper(m))
	}
	return methods
}

// Component creates http consumers.
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
	config := Configuration{Server: DefaultServer, Method: http.MethodPost, Realm: "rulego"}
	if err := maps.Map2Struct(c.Configuration, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	path, err := NormalizePath(remaining)
	if err != nil {
		return nil, err
	}
	if len(config.methods()) == 0 {
		return nil, fmt.Errorf("%w: method is required", types.ErrIllegalArgument)
	}
	users, err := c.users(config.BasicAuth)
	if err != nil {
		return nil, err
	}
	return &Endpoint{Endpoint: base.NewEndpoint(uri), Path: path, Config: config, users: users, component: c}, nil
}

// NormalizePath prefixes path with a slash.
func NormalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: path is required", types.ErrIllegalArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

func (c *Component) users(basicAuth string) (map[string]string, error) {
	if basicAuth == "" {
		return nil, nil
	}
	if types.IsRef(basicAuth) {
		users, err := types.LookupRef[map[string]string](c.Config().Beans, basicAuth)
		if err != nil {
			return nil, fmt.Errorf("%w: basicAuth: %s", types.ErrIllegalArgument, err)
		}
		return users, nil
	}
	users := make(map[string]string)
	for _, pair := range str.SplitAndTrim(basicAuth, ",") {
		user, hash, ok := strings.Cut(pair, ":")
		if !ok || user == "" || hash == "" {
			return nil, fmt.Errorf("%w: basicAuth entry %q is not user:bcryptHash", types.ErrIllegalArgument, pair)
		}
		users[user] = hash
	}
	return users, nil
}

// Endpoint serves one path on one server.
type Endpoint struct {
	base.Endpoint
	Path      string
	Config    Configuration
	users     map[string]string
	component *Component
}

func (e *Endpoint) CreateConsumer(processor types.Processor) (types.Consumer, error) {
	c := &Consumer{endpoint: e}
	c.ConsumerEndpoint = e
	c.Processor = processor
	return c, nil
}

// ServerConfig returns the shared server settings of the endpoint.
func (e *Endpoint) ServerConfig() ServerConfig {
	return ServerConfig{Addr: e.Config.Server, CertFile: e.Config.CertFile, CertKeyFile: e.Config.CertKeyFile}
}

// Wrap applies basic auth and CORS to handler.
func (e *Endpoint) Wrap(handler http.Handler) http.Handler {
	if len(e.users) > 0 {
		handler = basicAuth(e.users, e.Config.Realm, handler)
	}
	if e.Config.AllowCors {
		options := cors.Options{
			AllowedMethods:   append(e.Config.methods(), http.MethodOptions),
			AllowedHeaders:   []string{"*"},
			AllowCredentials: len(e.users) > 0,
		}
		if origins := str.SplitAndTrim(e.Config.AllowedOrigins, ","); len(origins) > 0 {
			options.AllowedOrigins = origins
		}
		handler = cors.New(options).Handler(handler)
	}
	return handler
}

func basicAuth(users map[string]string, realm string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if ok {
			if hash, found := users[user]; found && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	})
}

// Consumer turns requests into exchanges.
type Consumer struct {
	base.Consumer
	endpoint *Endpoint
	server   *Server
	methods  []string
}

// Server returns the server while the consumer is started.
func (c *Consumer) Server() *Server {
	return c.server
}

func (c *Consumer) Start() error {
	e := c.endpoint
	server, err := AcquireServer(e.ServerConfig(), e.component.Logger())
	if err != nil {
		return err
	}
	c.Reset()
	handler := e.Wrap(http.HandlerFunc(c.serveHTTP))
	methods := e.Config.methods()
	if e.Config.AllowCors && !contains(methods, http.MethodOptions) {
		methods = append(methods, http.MethodOptions)
	}
	var registered []string
	for _, method := range methods {
		if err := server.Handle(method, e.Path, handler); err != nil {
			for _, m := range registered {
				server.Remove(m, e.Path)
			}
			ReleaseServer(server)
			return err
		}
		registered = append(registered, method)
	}
	c.server, c.methods = server, registered
	return nil
}

func (c *Consumer) Stop() error {
	if c.server == nil {
		return nil
	}
	for _, method := range c.methods {
		c.server.Remove(method, c.endpoint.Path)
	}
	c.Shutdown(base.DefaultShutdownTimeout)
	ReleaseServer(c.server)
	c.server, c.methods = nil, nil
	return nil
}

func (c *Consumer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	exchange, err := NewExchange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Handle(exchange); err != nil && exchange.Err == nil {
		exchange.Err = err
	}
	if exchange.Err != nil {
		types.Warnf(c.endpoint.component.Logger(), "%s %s failed: %v", r.Method, r.URL.Path, exchange.Err)
	}
	WriteResponse(w, exchange, c.endpoint.Config.MuteExceptions)
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
