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

// Package httpclient builds the http clients of the outbound connectors and
// reads server sent event streams.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	ContentTypeKey  = "Content-Type"
	AcceptKey       = "Accept"
	JsonMime        = "application/json"
	EventStreamMime = "text/event-stream"
)

// Config is the transport configuration shared by connectors. Connectors
// embed it with `mapstructure:",squash"`.
type Config struct {
	// Timeout of a whole request. 0 means no limit.
	Timeout time.Duration
	//InsecureSkipVerify disables certificate verification
	InsecureSkipVerify bool
	//MaxParallelRequestsCount limits connections per host, 0 means no limit
	MaxParallelRequestsCount int
	EnableProxy              bool
	//UseSystemProxyProperties reads HTTP_PROXY/HTTPS_PROXY
	UseSystemProxyProperties bool
	//ProxyScheme is http, https or socks5
	ProxyScheme   string
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
}

// New creates a client for config.
func New(config Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}
	transport.MaxConnsPerHost = config.MaxParallelRequestsCount

	if config.EnableProxy {
		if config.UseSystemProxyProperties {
			if proxyURL := SystemProxy(); proxyURL != nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		} else if proxyURL := BuildProxyURL(config.ProxyScheme, config.ProxyHost, config.ProxyPort, config.ProxyUser, config.ProxyPassword); proxyURL != nil {
			if config.ProxyScheme == "socks5" {
				transport.Proxy = nil
				transport.DialContext = SOCKS5Dialer(proxyURL)
			} else {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}
	return &http.Client{Transport: transport, Timeout: config.Timeout}
}

// SystemProxy returns the proxy set in the environment.
func SystemProxy() *url.URL {
	for _, env := range []string{"HTTP_PROXY", "http_proxy", "HTTPS_PROXY", "https_proxy"} {
		if proxyStr := os.Getenv(env); proxyStr != "" {
			if proxyURL, err := url.Parse(proxyStr); err == nil {
				return proxyURL
			}
		}
	}
	return nil
}

// BuildProxyURL returns nil when scheme, host or port is missing.
func BuildProxyURL(scheme, host string, port int, user, password string) *url.URL {
	if scheme == "" || host == "" || port == 0 {
		return nil
	}
	proxyURL := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port)}
	if user != "" && password != "" {
		proxyURL.User = url.UserPassword(user, password)
	}
	return proxyURL
}

// SOCKS5Dialer dials through the socks5 proxy at proxyURL.
func SOCKS5Dialer(proxyURL *url.URL) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var auth *proxy.Auth
		if proxyURL.User != nil {
			if password, ok := proxyURL.User.Password(); ok {
				auth = &proxy.Auth{
					User:     proxyURL.User.Username(),
					Password: password,
				}
			}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		if d, ok := dialer.(proxy.ContextDialer); ok {
			return d.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
}

// IsEventStream reports whether header announces a server sent event stream.
func IsEventStream(header http.Header) bool {
	return strings.HasPrefix(header.Get(ContentTypeKey), EventStreamMime)
}

// ReadEvents reads a server sent event stream line by line and calls fn with
// the field name and value of every line. Empty lines and comments are
// skipped. An error returned by fn stops reading.
func ReadEvents(r io.Reader, fn func(field, value string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if err := fn(strings.TrimSpace(field), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
