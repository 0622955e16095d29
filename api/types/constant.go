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

import "errors"

const (
	Global = "global"
	// RefPrefix marks a parameter value as a bean reference.
	RefPrefix = "#"
	// SchemeSeparator separates the scheme from the rest of an endpoint uri.
	SchemeSeparator = ":"
)

const (
	// PropertyRouteStopped is set on exchanges that were dropped because their
	// route is stopping.
	PropertyRouteStopped = "RouteStopped"
	// PropertyFailureEndpoint holds the uri of the endpoint that failed.
	PropertyFailureEndpoint = "FailureEndpoint"
)

var (
	// ErrIllegalArgument is returned for invalid endpoint or component configuration.
	ErrIllegalArgument = errors.New("illegal argument")
	// ErrComponentExists is returned when registering a scheme twice.
	ErrComponentExists = errors.New("component already exists")
	// ErrComponentNotFound is returned when no component handles a scheme.
	ErrComponentNotFound = errors.New("component not found")
	// ErrInvalidUri is returned for uris without a scheme.
	ErrInvalidUri = errors.New("invalid endpoint uri")
	// ErrBeanNotFound is returned when a `#name` reference cannot be resolved.
	ErrBeanNotFound = errors.New("bean not found")
	// ErrBeanType is returned when a referenced bean has an unexpected type.
	ErrBeanType = errors.New("bean has unexpected type")
	// ErrConsumerNotSupported is returned by endpoints that can only produce.
	ErrConsumerNotSupported = errors.New("endpoint does not support consumers")
	// ErrProducerNotSupported is returned by endpoints that can only consume.
	ErrProducerNotSupported = errors.New("endpoint does not support producers")
	// ErrRouteExists is returned when adding a route with an id already in use.
	ErrRouteExists = errors.New("route already exists")
	// ErrRouteNotFound is returned for unknown route ids.
	ErrRouteNotFound = errors.New("route not found")
	// ErrNoConsumer is returned when sending to an in-process endpoint nobody consumes.
	ErrNoConsumer = errors.New("no consumers available on endpoint")
	// ErrEngineStopped is returned when using a stopped engine.
	ErrEngineStopped = errors.New("engine is stopped")
	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("timeout")
)
