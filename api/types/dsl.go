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

package types

// RoutesDsl is the file format of a routes definition.
//
//	routes:
//	  - id: orders
//	    from: rest:/orders?server=:9090&method=POST
//	    to:
//	      - dynamic-router:orders
//	subscriptions:
//	  - channel: orders
//	    id: big
//	    priority: 1
//	    predicate: msg.amount > 100
//	    destination: log:big
type RoutesDsl struct {
	// Properties are merged into the global properties.
	Properties map[string]string `json:"properties" yaml:"properties"`
	Routes     []RouteDsl        `json:"routes" yaml:"routes"`
	// Subscriptions are dynamic router filters registered at start up.
	Subscriptions []SubscriptionDsl `json:"subscriptions" yaml:"subscriptions"`
}

// RouteDsl defines one route: a consumer uri and the producer uris every
// exchange is sent to, in order.
type RouteDsl struct {
	Id   string   `json:"id" yaml:"id"`
	From string   `json:"from" yaml:"from"`
	To   []string `json:"to" yaml:"to"`
	// Disabled routes are added but not started.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// SubscriptionDsl defines a dynamic router filter.
type SubscriptionDsl struct {
	Channel  string `json:"channel" yaml:"channel"`
	Id       string `json:"id" yaml:"id"`
	Priority int    `json:"priority" yaml:"priority"`
	// Predicate is evaluated with Language, expr by default.
	Predicate   string `json:"predicate" yaml:"predicate"`
	Language    string `json:"language" yaml:"language"`
	Destination string `json:"destination" yaml:"destination"`
}
