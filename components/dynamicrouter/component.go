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

// Package dynamicrouter routes exchanges to destinations chosen at runtime.
//
// Destinations subscribe to a channel with a predicate, a priority and a
// destination uri, usually by sending a control message:
//
//	dynamic-router-control:subscribe?subscribeChannel=orders&subscriptionId=big&priority=1&predicate=msg.amount > 100&destinationUri=direct:big
//
// An exchange sent to dynamic-router:orders is then evaluated against the
// filters of channel orders, by ascending priority, and forwarded to the
// destination of the first matching filter (recipientMode=firstMatch) or of
// all matching filters (recipientMode=allMatch).
package dynamicrouter

import (
	"fmt"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/components/recipientlist"
)

var _ types.Component = (*Component)(nil)

// Component owns the filter service shared by the endpoints of all channels
// and by the control component of the same engine.
type Component struct {
	base.Component
	filterService *FilterService
}

func (c *Component) Type() string {
	return Type
}

func (c *Component) New() types.Component {
	return &Component{}
}

func (c *Component) Init(ctx types.EngineContext, configuration types.Configuration) error {
	if err := c.Component.Init(ctx, configuration); err != nil {
		return err
	}
	config := ctx.Config()
	metrics, err := NewMetrics(config.MetricsRegisterer)
	if err != nil {
		return fmt.Errorf("dynamic router metrics: %w", err)
	}
	c.filterService = NewFilterService(config.Logger, metrics)
	ctx.AddRouteStoppedListener(func(routeId string) {
		c.filterService.RemoveFiltersOwnedBy(routeId)
	})
	return nil
}

// FilterService returns the filter service of the component.
func (c *Component) FilterService() *FilterService {
	return c.filterService
}

func (c *Component) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	config, err := NewConfiguration(remaining, params)
	if err != nil {
		return nil, fmt.Errorf("dynamic router endpoint %s: %w", uri, err)
	}
	// resolves bean references so a bad endpoint fails on creation
	if _, err := recipientlist.New(c.EngineCtx, HeaderRecipientList, config.Configuration); err != nil {
		return nil, fmt.Errorf("dynamic router endpoint %s: %w", uri, err)
	}
	c.filterService.InitializeChannelFilters(config.Channel)
	return &Endpoint{
		Endpoint:  base.NewEndpoint(uri),
		Config:    config,
		component: c,
	}, nil
}

// Endpoint is a dynamic-router:<channel> endpoint. It only produces.
type Endpoint struct {
	base.Endpoint
	Config    Configuration
	component *Component
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	list, err := recipientlist.New(e.component.EngineCtx, HeaderRecipientList, e.Config.Configuration)
	if err != nil {
		return nil, err
	}
	processor := NewProcessor(e.Config.Channel, e.Config.RecipientMode, e.Config.WarnDroppedMessage,
		e.component.filterService, list)
	return &Producer{Processor: processor, endpoint: e}, nil
}

// Producer routes exchanges with its processor. Unless the endpoint is
// synchronous the dispatch runs on the pool and Process waits for it.
type Producer struct {
	*Processor
	endpoint *Endpoint
}

func (p *Producer) Endpoint() types.Endpoint {
	return p.endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	if p.endpoint.Config.Synchronous {
		return p.Processor.Process(exchange)
	}
	done := make(chan struct{})
	if !p.Processor.ProcessAsync(exchange, func(bool) { close(done) }) {
		<-done
	}
	return exchange.Err
}
