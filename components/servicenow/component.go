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

// Package servicenow calls the table, aggregate and import set rest apis of a
// ServiceNow instance.
//
//	servicenow:dev12345/table/retrieve?userName=admin&password=secret&tableName=incident&limit=10
//
// Method arguments may also be given as headers prefixed with ServiceNow.,
// for example ServiceNow.sysId. Endpoints can consume as well, polling the
// method on a schedule.
package servicenow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/api"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/httpclient"
	"github.com/rulego/rulego-connectors/utils/maps"
)

const (
	Type = "servicenow"
	// PropertyPrefix prefixes headers holding method arguments.
	PropertyPrefix = "ServiceNow."
)

var _ types.Component = (*Component)(nil)

// Configuration of an endpoint. Component properties are defaults for every
// endpoint.
type Configuration struct {
	api.EndpointConfiguration `mapstructure:",squash"`
	httpclient.Config         `mapstructure:",squash"`
	// InstanceUrl defaults to https://<instance>.service-now.com.
	InstanceUrl       string
	ApiVersion        string
	UserName          string
	Password          string
	OauthClientId     string
	OauthClientSecret string
	OauthTokenUrl     string
}

func (c Configuration) clientConfig() ClientConfig {
	return ClientConfig{
		InstanceUrl:       c.InstanceUrl,
		ApiVersion:        c.ApiVersion,
		UserName:          c.UserName,
		Password:          c.Password,
		OauthClientId:     c.OauthClientId,
		OauthClientSecret: c.OauthClientSecret,
		OauthTokenUrl:     c.OauthTokenUrl,
	}
}

// Component shares one client per instance and credentials between its
// endpoints.
type Component struct {
	base.Component
	lock    sync.Mutex
	clients map[string]*Client
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	c.clients = make(map[string]*Client)
	return c.Component.Init(ctx, configuration)
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	merged := make(types.Configuration, len(c.Configuration)+len(params))
	for k, v := range c.Configuration {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	var config Configuration
	if err := maps.Map2Struct(merged, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	instance, path, _ := strings.Cut(remaining, "/")
	if instance == "" {
		return nil, fmt.Errorf("%w: servicenow requires an instance name, uri=%s", types.ErrIllegalArgument, uri)
	}
	apiName, methodName := api.SplitMethodPath(path)
	if config.ApiName == "" {
		config.ApiName = apiName
	}
	if config.MethodName == "" {
		config.MethodName = methodName
	}
	if config.InstanceUrl == "" {
		config.InstanceUrl = fmt.Sprintf("https://%s.service-now.com", instance)
	}
	if config.UserName == "" {
		return nil, fmt.Errorf("%w: servicenow requires userName, uri=%s", types.ErrIllegalArgument, uri)
	}
	if config.OauthClientId != "" && config.OauthClientSecret == "" {
		return nil, fmt.Errorf("%w: oauthClientSecret is required with oauthClientId", types.ErrIllegalArgument)
	}
	endpoint, err := api.NewEndpoint(c.EngineCtx, uri, config.EndpointConfiguration, merged, Apis,
		api.NewApiMethodPropertiesHelper(PropertyPrefix), c.client(config))
	if err != nil {
		return nil, err
	}
	return &Endpoint{Endpoint: endpoint, Config: config}, nil
}

func (c *Component) client(config Configuration) *Client {
	key := fmt.Sprintf("%+v|%+v", config.clientConfig(), config.Config)
	c.lock.Lock()
	defer c.lock.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}
	client := NewClient(config.clientConfig(), httpclient.New(config.Config))
	c.clients[key] = client
	return client
}

// Endpoint is an api endpoint bound to an instance.
type Endpoint struct {
	*api.Endpoint
	Config Configuration
}

// Client returns the instance client.
func (e *Endpoint) Client() *Client {
	return e.Proxy.(*Client)
}
