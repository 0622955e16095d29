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

package api

import (
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
)

// Producer invokes the endpoint method for every exchange. Arguments come
// from the endpoint, then prefixed headers, then the body when inBody is set.
type Producer struct {
	base.Producer
	endpoint *Endpoint
}

func (p *Producer) Process(exchange *types.Exchange) error {
	e := p.endpoint
	properties := make(map[string]any, len(e.Properties)+1)
	for k, v := range e.Properties {
		properties[k] = v
	}
	e.propertiesHelper.ExchangeProperties(exchange, properties)
	if e.Config.InBody != "" && exchange.In.Body != "" {
		properties[e.Config.InBody] = exchange.In.Body
	}
	method, err := e.FindMethod(keys(properties))
	if err != nil {
		exchange.Err = err
		return err
	}
	result, err := e.Helper.InvokeMethod(exchange.Ctx(), e.Proxy, method, properties)
	if err == nil {
		err = SetResult(exchange, result, e.Config.ResultHeader)
	}
	if err != nil {
		exchange.Err = err
	}
	return err
}
