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


package dynamicrouter

import (
	"errors"
	"math"
)

const (
	// Type is the scheme of router endpoints: dynamic-router:<channel>.
	Type = "dynamic-router"
	// ControlType is the scheme of control endpoints:
	// dynamic-router-control:<action>.
	ControlType = "dynamic-router-control"
)

// Recipient modes.
const (
	ModeFirstMatch = "firstMatch"
	ModeAllMatch   = "allMatch"
)

// Message headers written by the router.
const (
	// HeaderRecipientList holds the comma separated uris computed for an
	// exchange.
	HeaderRecipientList = "DynamicRouterRecipientList"
	// HeaderOriginalBody keeps the body of an exchange no filter matched.
	HeaderOriginalBody = "DynamicRouterOriginalBody"
)

// Control actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionUpdate      = "update"
	ActionList        = "list"
	ActionStatistics  = "statistics"
)

// Control message headers. They override the control endpoint parameters.
const (
	HeaderControlAction             = "DynamicRouterControlAction"
	HeaderControlSubscribeChannel   = "DynamicRouterControlSubscribeChannel"
	HeaderControlSubscriptionId     = "DynamicRouterControlSubscriptionId"
	HeaderControlDestinationUri     = "DynamicRouterControlDestinationUri"
	HeaderControlPriority           = "DynamicRouterControlPriority"
	HeaderControlPredicate          = "DynamicRouterControlPredicate"
	HeaderControlPredicateBean      = "DynamicRouterControlPredicateBean"
	HeaderControlExpressionLanguage = "DynamicRouterControlExpressionLanguage"
)

// DefaultPriority sorts filters subscribed without a priority last.
const DefaultPriority = math.MaxInt32

var (
	// ErrFilterExists is returned when adding a filter whose id is already
	// subscribed on the channel.
	ErrFilterExists = errors.New("filter already exists")
	// ErrFilterNotFound is returned when updating a filter that is not
	// subscribed on the channel.
	ErrFilterNotFound = errors.New("filter not found")
)
