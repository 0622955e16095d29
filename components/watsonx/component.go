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

// Package watsonx sends messages to the watsonx.ai foundation model api.
//
//	watsonx:assistant?operation=chat&modelId=ibm/granite-13b-chat-v2&projectId=...&apiKey=...
//
// The message body is the prompt, chat messages, texts to embed or text to
// tokenize. Headers WatsonxAiOperation and WatsonxAiModelId override the
// endpoint per message.
package watsonx

import (
	"fmt"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/httpclient"
	"github.com/rulego/rulego-connectors/utils/maps"
)

const Type = "watsonx"

// Message headers.
const (
	HeaderOperation           = "WatsonxAiOperation"
	HeaderModelId             = "WatsonxAiModelId"
	HeaderGeneratedTokenCount = "WatsonxAiGeneratedTokenCount"
	HeaderInputTokenCount     = "WatsonxAiInputTokenCount"
	HeaderStopReason          = "WatsonxAiStopReason"
	HeaderTokenCount          = "WatsonxAiTokenCount"
)

var _ types.Component = (*Component)(nil)

// Configuration of an endpoint. Component properties are defaults for every
// endpoint.
type Configuration struct {
	httpclient.Config `mapstructure:",squash"`
	Operation         string
	ModelId           string
	ProjectId         string
	SpaceId           string
	ApiKey            string
	BaseUrl           string
	IamUrl            string
	Version           string
	DecodingMethod    string
	MaxNewTokens      int
	MinNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	// SystemMessage is prepended to plain text chat requests.
	SystemMessage string
	// StreamHandler references a StreamHandler bean, for example #printer.
	StreamHandler string
}

func (c *Configuration) Validate() error {
	if _, ok := operations[c.Operation]; !ok {
		return fmt.Errorf("%w: unknown operation %q", types.ErrIllegalArgument, c.Operation)
	}
	if c.ModelId == "" {
		return fmt.Errorf("%w: modelId is required", types.ErrIllegalArgument)
	}
	if c.ProjectId == "" && c.SpaceId == "" {
		return fmt.Errorf("%w: projectId or spaceId is required", types.ErrIllegalArgument)
	}
	if c.ApiKey == "" {
		return fmt.Errorf("%w: apiKey is required", types.ErrIllegalArgument)
	}
	if c.StreamHandler != "" && !types.IsRef(c.StreamHandler) {
		return fmt.Errorf("%w: streamHandler must be a #reference", types.ErrIllegalArgument)
	}
	return nil
}

// Component shares one client per service url and api key.
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
	config := Configuration{Operation: OperationTextGeneration}
	if err := maps.Map2Struct(merged, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var handler StreamHandler
	if config.StreamHandler != "" {
		h, err := types.LookupRef[StreamHandler](c.Config().Beans, config.StreamHandler)
		if err != nil {
			return nil, fmt.Errorf("%w: streamHandler: %s", types.ErrIllegalArgument, err)
		}
		handler = h
	}
	return &Endpoint{
		Endpoint: base.NewEndpoint(uri),
		Label:    remaining,
		Config:   config,
		client:   c.client(config),
		handler:  handler,
	}, nil
}

func (c *Component) client(config Configuration) *Client {
	clientConfig := ClientConfig{BaseUrl: config.BaseUrl, IamUrl: config.IamUrl, ApiKey: config.ApiKey, Version: config.Version}
	key := fmt.Sprintf("%+v|%+v", clientConfig, config.Config)
	c.lock.Lock()
	defer c.lock.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}
	client := NewClient(clientConfig, httpclient.New(config.Config))
	c.clients[key] = client
	return client
}

type Endpoint struct {
	base.Endpoint
	Label   string
	Config  Configuration
	client  *Client
	handler StreamHandler
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{Producer: base.Producer{ProducerEndpoint: e}, endpoint: e}, nil
}

// Producer runs the endpoint operation for every exchange.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	e := p.endpoint
	name := e.Config.Operation
	if v := exchange.In.Headers.GetValue(HeaderOperation); v != "" {
		name = v
	}
	modelId := e.Config.ModelId
	if v := exchange.In.Headers.GetValue(HeaderModelId); v != "" {
		modelId = v
	}
	op, ok := operations[name]
	if !ok {
		exchange.Err = fmt.Errorf("%w: unknown operation %q", types.ErrIllegalArgument, name)
		return exchange.Err
	}
	r := &request{client: e.client, config: &e.Config, modelId: modelId, exchange: exchange, handler: e.handler}
	if err := op(exchange.Ctx(), r); err != nil {
		exchange.Err = err
		return err
	}
	return nil
}
