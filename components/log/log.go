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

// Package log provides an endpoint that writes exchanges to the engine logger.
//
//	log:orders?level=WARN&showHeaders=true
//	log:orders?format=order ${msg.id} from ${headers.HttpPath}
package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/predicate"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/maps"
	"github.com/rulego/rulego-connectors/utils/str"
)

const Type = "log"

var _ types.Component = (*Component)(nil)

// Configuration of a log endpoint.
type Configuration struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. Default INFO.
	Level string
	// ShowHeaders includes the message headers.
	ShowHeaders bool
	// MaxChars truncates the body, 0 means unlimited.
	MaxChars int
	// Format replaces the default rendering. ${} placeholders read the
	// expression variables: id, type, body, msg.<field>, headers.<name>.
	Format string
}

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
	config := Configuration{Level: "INFO"}
	if err := maps.Map2Struct(params, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	name := remaining
	if name == "" {
		name = Type
	}
	return &Endpoint{
		Endpoint: base.NewEndpoint(uri),
		Name:     name,
		Config:   config,
		level:    types.ParseLevel(config.Level),
		logger:   c.Logger(),
	}, nil
}

type Endpoint struct {
	base.Endpoint
	Name   string
	Config Configuration
	level  types.Level
	logger types.Logger
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	p := &producer{endpoint: e}
	p.ProducerEndpoint = e
	return p, nil
}

// Format renders exchange the way the endpoint logs it.
func (e *Endpoint) Format(exchange *types.Exchange) string {
	var sb strings.Builder
	sb.WriteString("Exchange[")
	sb.WriteString(e.Name)
	sb.WriteString("] ")
	if e.Config.Format != "" {
		sb.WriteString(str.ExecuteTemplate(e.Config.Format, predicate.Env(exchange)))
		return sb.String()
	}
	if e.Config.ShowHeaders {
		keys := make([]string, 0, len(exchange.In.Headers))
		for k := range exchange.In.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Headers: {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(exchange.In.Headers[k])
		}
		sb.WriteString("} ")
	}
	body := exchange.In.Body
	if e.Config.MaxChars > 0 && len(body) > e.Config.MaxChars {
		body = body[:e.Config.MaxChars] + "..."
	}
	sb.WriteString("Body: ")
	sb.WriteString(body)
	return sb.String()
}

type producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *producer) Process(exchange *types.Exchange) error {
	msg := p.endpoint.Format(exchange)
	switch p.endpoint.level {
	case types.DebugLevel:
		types.Debugf(p.endpoint.logger, "%s", msg)
	case types.WarnLevel:
		types.Warnf(p.endpoint.logger, "%s", msg)
	case types.ErrorLevel:
		types.Errorf(p.endpoint.logger, "%s", msg)
	default:
		types.Infof(p.endpoint.logger, "%s", msg)
	}
	return nil
}
