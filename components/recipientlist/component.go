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

package recipientlist

import (
	"fmt"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/maps"
)

const Type = "recipient-list"

var _ types.Component = (*Component)(nil)

// Component creates recipient list endpoints. The uri remaining part names
// the header holding the recipients.
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
	if remaining == "" {
		return nil, fmt.Errorf("%w: recipient list requires a header name, uri=%s", types.ErrIllegalArgument, uri)
	}
	var config Configuration
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	// validate eagerly, producers are created later
	if _, err := New(c.EngineCtx, remaining, config); err != nil {
		return nil, err
	}
	return &Endpoint{Endpoint: base.NewEndpoint(uri), Header: remaining, Config: config, ctx: c.EngineCtx}, nil
}

type Endpoint struct {
	base.Endpoint
	Header string
	Config Configuration
	ctx    types.EngineContext
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	list, err := New(e.ctx, e.Header, e.Config)
	if err != nil {
		return nil, err
	}
	return &Producer{RecipientList: list, endpoint: e}, nil
}

// Producer dispatches every exchange through its recipient list.
type Producer struct {
	*RecipientList
	endpoint *Endpoint
}

func (p *Producer) Endpoint() types.Endpoint {
	return p.endpoint
}
