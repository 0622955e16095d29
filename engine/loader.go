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

package engine

import (
	"fmt"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/json"
	"gopkg.in/yaml.v3"
)

// ControlSubscribeUri receives the subscriptions of a routes definition.
const ControlSubscribeUri = "dynamic-router-control:subscribe"

// ParseRoutes decodes a yaml or json routes definition.
func ParseRoutes(data []byte) (types.RoutesDsl, error) {
	var def types.RoutesDsl
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("parse routes: %w", err)
	}
	for i, r := range def.Routes {
		if r.From == "" {
			return def, fmt.Errorf("parse routes: route %d (%s) has no from uri", i, r.Id)
		}
	}
	return def, nil
}

// LoadRoutes merges the definition properties into the global properties,
// adds the routes and registers the subscriptions through the dynamic
// router control channel. Subscriptions are registered after the routes
// are added so their destinations resolve.
func (e *Engine) LoadRoutes(def types.RoutesDsl) error {
	for k, v := range def.Properties {
		e.config.Properties.PutValue(k, v)
	}
	for _, r := range def.Routes {
		b := e.From(r.From).Id(r.Id).To(r.To...)
		if r.Disabled {
			b.Disabled()
		}
		if _, err := b.End(); err != nil {
			return err
		}
	}
	for _, sub := range def.Subscriptions {
		body, err := json.MarshalString(sub)
		if err != nil {
			return err
		}
		exchange, err := e.ProducerTemplate().SendBody(ControlSubscribeUri, body)
		if err != nil {
			return fmt.Errorf("subscribe %s on channel %s: %w", sub.Id, sub.Channel, err)
		}
		types.Infof(e.config.Logger, "subscription %s registered on channel %s", exchange.In.Body, sub.Channel)
	}
	return nil
}
