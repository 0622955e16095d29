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


package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rulego/rulego-connectors/api/types"
)

// ServerConfig configures a shared http server.
type ServerConfig struct {
	// Addr is the listen address, for example :9090.
	Addr        string
	CertFile    string
	CertKeyFile string
}

// Server is an http server shared by every consumer listening on the same
// address. Routes are registered once on the router and switched on and off
// with their consumer, since httprouter cannot remove a route.
type Server struct {
	Config ServerConfig
	logger types.Logger

	lock     sync.Mutex
	router   *httprouter.Router
	server   *http.Server
	listener net.Listener
	routes   map[string]*serverRoute
	refs     int
}

type serverRoute struct {
	lock    sync.RWMutex
	handler http.Handler
}

func (r *serverRoute) get() http.Handler {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.handler
}

func (r *serverRoute) set(handler http.Handler) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.handler = handler
}

var servers = struct {
	sync.Mutex
	m map[string]*Server
}{m: make(map[string]*Server)}

// AcquireServer returns the started server listening on config.Addr, starting
// it on first use. Every AcquireServer must be paired with ReleaseServer.
func AcquireServer(config ServerConfig, logger types.Logger) (*Server, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("%w: server address is required", types.ErrIllegalArgument)
	}
	servers.Lock()
	defer servers.Unlock()
	if s, ok := servers.m[config.Addr]; ok {
		if s.Config != config {
			return nil, fmt.Errorf("%w: server %s is already started with different tls settings", types.ErrIllegalArgument, config.Addr)
		}
		s.lock.Lock()
		s.refs++
		s.lock.Unlock()
		return s, nil
	}
	s := &Server{Config: config, logger: logger, routes: make(map[string]*serverRoute), refs: 1}
	if err := s.start(); err != nil {
		return nil, err
	}
	servers.m[config.Addr] = s
	return s, nil
}

// ReleaseServer drops a reference taken by AcquireServer. The last release
// shuts the server down.
func ReleaseServer(s *Server) {
	servers.Lock()
	defer servers.Unlock()
	s.lock.Lock()
	s.refs--
	last := s.refs <= 0
	s.lock.Unlock()
	if !last {
		return
	}
	if servers.m[s.Config.Addr] == s {
		delete(servers.m, s.Config.Addr)
	}
	s.shutdown()
}

func (s *Server) start() error {
	ln, err := net.Listen("tcp", s.Config.Addr)
	if err != nil {
		return err
	}
	s.router = httprouter.New()
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 30 * time.Second}
	s.listener = ln
	tlsEnabled := s.Config.CertFile != "" && s.Config.CertKeyFile != ""
	if tlsEnabled {
		s.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	go func() {
		var err error
		if tlsEnabled {
			types.Infof(s.logger, "starting server with TLS on %s", ln.Addr())
			err = s.server.ServeTLS(ln, s.Config.CertFile, s.Config.CertKeyFile)
		} else {
			types.Infof(s.logger, "starting server on %s", ln.Addr())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			types.Errorf(s.logger, "server %s stopped: %v", s.Config.Addr, err)
		}
	}()
	return nil
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		types.Warnf(s.logger, "shutdown server %s: %v", s.Config.Addr, err)
	}
}

// Addr returns the address the server listens on. It resolves port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Handle routes method requests on path to handler. A route that was
// registered before and is inactive is reused. Registering an active route
// or a path httprouter rejects fails with ErrIllegalArgument.
func (s *Server) Handle(method, path string, handler http.Handler) (err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := method + " " + path
	if route, ok := s.routes[key]; ok {
		if route.get() != nil {
			return fmt.Errorf("%w: %s %s is already served on %s", types.ErrIllegalArgument, method, path, s.Config.Addr)
		}
		route.set(handler)
		return nil
	}
	route := &serverRoute{handler: handler}
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%w: %v", types.ErrIllegalArgument, e)
		}
	}()
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		h := route.get()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), httprouter.ParamsKey, params)))
	})
	s.routes[key] = route
	return nil
}

// Remove deactivates the route of method and path.
func (s *Server) Remove(method, path string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if route, ok := s.routes[method+" "+path]; ok {
		route.set(nil)
	}
}
