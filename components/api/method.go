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

// Package api lets a connector expose a remote api as a set of described
// methods. Endpoints name a method and supply arguments as uri parameters,
// message headers or the message body, and the overload whose arguments
// match is invoked.
//
//	servicenow:dev/table/retrieve?tableName=incident&limit=10
//
// Methods are declared with explicit descriptors:
//
//	api.ApiMethod{
//		Name: "retrieve",
//		Args: []api.ApiMethodArg{{Name: "tableName", Type: cast.KindString}, {Name: "sysId", Type: cast.KindString}},
//		Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
//			return proxy.(*Client).RetrieveRecord(ctx, args["tableName"].(string), args["sysId"].(string))
//		},
//	}
package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ApiMethodArg describes one argument. Type is a cast kind the supplied
// value is converted to before invocation.
type ApiMethodArg struct {
	Name string
	Type string
}

// InvokeFunc calls the method on proxy. args holds converted values keyed by
// argument name. Arguments that were not supplied are absent.
type InvokeFunc func(ctx context.Context, proxy any, args map[string]any) (any, error)

// ApiMethod describes one overload of a remote operation.
type ApiMethod struct {
	Name string
	// Api is the name of the api the method belongs to.
	Api  string
	Args []ApiMethodArg
	// Nullable names arguments that may be omitted.
	Nullable []string
	// Priority breaks ties between overloads matching the same arguments.
	// Higher wins.
	Priority int
	Invoke   InvokeFunc
}

// ArgNames returns the argument names in declaration order.
func (m *ApiMethod) ArgNames() []string {
	names := make([]string, 0, len(m.Args))
	for _, a := range m.Args {
		names = append(names, a.Name)
	}
	return names
}

func (m *ApiMethod) String() string {
	return fmt.Sprintf("%s/%s(%s)", m.Api, m.Name, strings.Join(m.ArgNames(), ", "))
}

// MissingPropertiesError is returned when no overload can be called with the
// supplied arguments.
type MissingPropertiesError struct {
	Api     string
	Method  string
	Missing []string
}

func (e *MissingPropertiesError) Error() string {
	missing := append([]string(nil), e.Missing...)
	sort.Strings(missing)
	return fmt.Sprintf("missing properties for %s/%s, need one or more from %v", e.Api, e.Method, missing)
}

// RuntimeError wraps a failed invocation.
type RuntimeError struct {
	Method string
	Cause  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("error invoking %s: %s", e.Method, e.Cause)
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}
