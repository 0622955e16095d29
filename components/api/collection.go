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
	"fmt"
	"sort"
	"strings"

	"github.com/rulego/rulego-connectors/api/types"
)

// ApiCollection holds the apis of one connector by name.
type ApiCollection struct {
	helpers map[string]*ApiMethodHelper
}

// NewApiCollection indexes helpers by their api name.
func NewApiCollection(helpers ...*ApiMethodHelper) *ApiCollection {
	c := &ApiCollection{helpers: make(map[string]*ApiMethodHelper, len(helpers))}
	for _, h := range helpers {
		c.helpers[h.Api()] = h
	}
	return c
}

// Helper returns the helper of apiName.
func (c *ApiCollection) Helper(apiName string) (*ApiMethodHelper, error) {
	h, ok := c.helpers[apiName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown api %q, valid apis are %v", types.ErrIllegalArgument, apiName, c.ApiNames())
	}
	return h, nil
}

// ApiNames returns the api names, sorted.
func (c *ApiCollection) ApiNames() []string {
	names := make([]string, 0, len(c.helpers))
	for name := range c.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApiMethodPropertiesHelper extracts method arguments from endpoint
// parameters and message headers. Headers carry a connector prefix, for
// example ServiceNow.tableName.
type ApiMethodPropertiesHelper struct {
	prefix string
}

func NewApiMethodPropertiesHelper(prefix string) *ApiMethodPropertiesHelper {
	return &ApiMethodPropertiesHelper{prefix: prefix}
}

// Prefix returns the header prefix.
func (h *ApiMethodPropertiesHelper) Prefix() string {
	return h.prefix
}

// EndpointProperties returns the params that are arguments of the api.
func (h *ApiMethodPropertiesHelper) EndpointProperties(params types.Configuration, helper *ApiMethodHelper) map[string]any {
	properties := make(map[string]any)
	for key, value := range params {
		if _, ok := helper.GetType(key); ok {
			properties[key] = value
		}
	}
	return properties
}

// ExchangeProperties copies the prefixed headers of exchange into
// properties with the prefix removed. It returns the number of headers
// copied.
func (h *ApiMethodPropertiesHelper) ExchangeProperties(exchange *types.Exchange, properties map[string]any) int {
	n := 0
	for key, value := range exchange.In.Headers {
		if name, ok := strings.CutPrefix(key, h.prefix); ok && name != "" {
			properties[name] = value
			n++
		}
	}
	return n
}
