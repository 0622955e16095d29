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


// Package httpcall calls http services.
//
//	http://api.example.com/orders?httpMethod=POST&timeout=2s&verbose=true
//	https://api.example.com/orders/${id}
//
// Parameters that configure the endpoint are consumed, every other parameter
// is sent as query. The message body is the request body and the response
// becomes the message. Message headers are sent as request headers, except
// the internal ones. HttpMethod, HttpPath, HttpQuery and HttpUri override the
// request line, and ${header} placeholders in the uri are replaced with
// message headers.
//
// The reply status is written to HttpResponseCode and HttpResponseText.
// Non 2xx replies fail with *OperationFailedError unless
// throwExceptionOnFailure=false, in which case the reply body is kept and
// the HttpErrorBody header is set.
package httpcall

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/components/rest"
	"github.com/rulego/rulego-connectors/utils/httpclient"
	"github.com/rulego/rulego-connectors/utils/maps"
	"github.com/rulego/rulego-connectors/utils/str"
)

const (
	TypeHttp  = "http"
	TypeHttps = "https"
)

// Reply headers.
const (
	HeaderResponseCode = "HttpResponseCode"
	HeaderResponseText = "HttpResponseText"
	HeaderErrorBody    = "HttpErrorBody"
)

// OperationFailedError is returned for non 2xx replies.
type OperationFailedError struct {
	Uri        string
	StatusCode int
	Status     string
	Location   string
	Body       string
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("http operation failed invoking %s with statusCode: %d", e.Uri, e.StatusCode)
}

// Configuration of an http endpoint.
type Configuration struct {
	httpclient.Config `mapstructure:",squash"`
	// HttpMethod is the default method. Without it POST is used when the
	// body is not empty and GET otherwise.
	HttpMethod         string
	WithoutRequestBody bool
	// ThrowExceptionOnFailure fails exchanges on non 2xx replies.
	ThrowExceptionOnFailure bool
	// BridgeEndpoint ignores the HttpUri and HttpPath headers, so a request
	// received by a rest consumer can be forwarded as is.
	BridgeEndpoint bool
}

var (
	_ types.Component = (*Component)(nil)
	_ types.Producer  = (*Producer)(nil)
)

// Component creates http endpoints for one scheme. It shares clients between
// endpoints with the same transport configuration.
type Component struct {
	base.Component
	Scheme string

	lock    sync.Mutex
	clients map[httpclient.Config]*http.Client
}

// New returns a component for scheme http or https.
func New(scheme string) *Component {
	return &Component{Scheme: scheme}
}

func (c *Component) Type() string {
	return c.Scheme
}

func (c *Component) New() types.Component {
	return &Component{Scheme: c.Scheme}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.clients = make(map[httpclient.Config]*http.Client)
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	config := Configuration{ThrowExceptionOnFailure: true}
	if err := maps.Map2Struct(c.Configuration, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	unused, err := maps.Map2StructUnused(params, &config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if !strings.HasPrefix(remaining, "//") {
		remaining = "//" + remaining
	}
	address := c.Scheme + ":" + remaining
	if target, err := url.Parse(address); err != nil || target.Host == "" {
		return nil, fmt.Errorf("%w: invalid http address %q", types.ErrIllegalArgument, uri)
	}
	if len(unused) > 0 {
		query := url.Values{}
		for _, key := range unused {
			query.Set(key, fmt.Sprint(params[key]))
		}
		address += "?" + query.Encode()
	}
	config.HttpMethod = strings.ToUpper(config.HttpMethod)
	return &Endpoint{
		Endpoint: base.NewEndpoint(uri),
		Address:  address,
		Config:   config,
		client:   c.client(config.Config),
	}, nil
}

func (c *Component) client(config httpclient.Config) *http.Client {
	c.lock.Lock()
	defer c.lock.Unlock()
	if client, ok := c.clients[config]; ok {
		return client
	}
	client := httpclient.New(config)
	c.clients[config] = client
	return client
}

// Endpoint is one http address.
type Endpoint struct {
	base.Endpoint
	// Address is the resolved request url, including query parameters.
	Address string
	Config  Configuration
	client  *http.Client
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{Producer: base.Producer{ProducerEndpoint: e}, endpoint: e}, nil
}

// Producer sends one request per exchange.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	if err := p.process(exchange); err != nil {
		exchange.Err = err
		return err
	}
	return nil
}

func (p *Producer) process(exchange *types.Exchange) error {
	e := p.endpoint
	msg := &exchange.In
	address, err := p.address(msg.Headers)
	if err != nil {
		return err
	}
	method := p.method(msg)
	var body io.Reader
	if !e.Config.WithoutRequestBody && msg.Body != "" {
		body = bytes.NewReader([]byte(msg.Body))
	}
	req, err := http.NewRequestWithContext(exchange.Ctx(), method, address, body)
	if err != nil {
		return err
	}
	for key, value := range msg.Headers {
		if !rest.IsInternalHeader(key) {
			req.Header.Set(key, value)
		}
	}
	if body != nil && req.Header.Get(httpclient.ContentTypeKey) == "" {
		if msg.DataType == types.JSON {
			req.Header.Set(httpclient.ContentTypeKey, httpclient.JsonMime)
		} else {
			req.Header.Set(httpclient.ContentTypeKey, "text/plain; charset=utf-8")
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := readBody(resp)
	if err != nil {
		return err
	}
	headers := types.NewHeaders()
	for key, values := range msg.Headers {
		if !strings.HasPrefix(key, "Http") {
			headers[key] = values
		}
	}
	for key, values := range resp.Header {
		headers.PutValue(key, strings.Join(values, ","))
	}
	headers.PutValue(HeaderResponseCode, strconv.Itoa(resp.StatusCode))
	headers.PutValue(HeaderResponseText, strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))))
	msg.Headers = headers
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		headers.PutValue(HeaderErrorBody, payload)
		if e.Config.ThrowExceptionOnFailure {
			return &OperationFailedError{
				Uri:        address,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Location:   resp.Header.Get("Location"),
				Body:       payload,
			}
		}
	}
	msg.Body = payload
	msg.DataType = types.TEXT
	if strings.Contains(resp.Header.Get(httpclient.ContentTypeKey), "json") {
		msg.DataType = types.JSON
	}
	return nil
}

// readBody reads the reply. Event streams are reduced to their data lines.
func readBody(resp *http.Response) (string, error) {
	if !httpclient.IsEventStream(resp.Header) {
		b, err := io.ReadAll(resp.Body)
		return string(b), err
	}
	var data []string
	err := httpclient.ReadEvents(resp.Body, func(field, value string) error {
		if field == "data" {
			data = append(data, value)
		}
		return nil
	})
	return strings.Join(data, "\n"), err
}

func (p *Producer) method(msg *types.Message) string {
	if m := msg.Headers.GetValue(rest.HeaderHttpMethod); m != "" {
		return strings.ToUpper(m)
	}
	if p.endpoint.Config.HttpMethod != "" {
		return p.endpoint.Config.HttpMethod
	}
	if msg.Body != "" && !p.endpoint.Config.WithoutRequestBody {
		return http.MethodPost
	}
	return http.MethodGet
}

// address applies the request line headers and placeholders to the
// endpoint address.
func (p *Producer) address(headers types.Headers) (string, error) {
	address := p.endpoint.Address
	bridge := p.endpoint.Config.BridgeEndpoint
	if v := headers.GetValue(rest.HeaderHttpUri); v != "" && !bridge && strings.Contains(v, "://") {
		address = v
	}
	if str.CheckHasVar(address) {
		address = str.SprintfDict(address, headers)
	}
	target, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if v := headers.GetValue(rest.HeaderHttpPath); v != "" && !bridge {
		target.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(v, "/")
	}
	if v := headers.GetValue(rest.HeaderHttpQuery); v != "" {
		target.RawQuery = v
	}
	return target.String(), nil
}
