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
	"context"
	"fmt"
	"sort"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/rulego/rulego-connectors/utils/runtime"
)

// MatchType selects how FilterMethods compares supplied argument names with
// method arguments.
type MatchType int

const (
	// Exact requires the method arguments to equal the supplied names.
	Exact MatchType = iota
	// Subset requires every supplied name to be a method argument.
	Subset
	// SuperSet requires every method argument to be supplied. Exact matches
	// are preferred, then methods ignoring some supplied names, then methods
	// whose missing arguments are all nullable.
	SuperSet
)

func (m MatchType) String() string {
	switch m {
	case Exact:
		return "EXACT"
	case Subset:
		return "SUBSET"
	default:
		return "SUPER_SET"
	}
}

// ApiMethodHelper resolves and invokes the methods of one api.
type ApiMethodHelper struct {
	api      string
	methods  []*ApiMethod
	byName   map[string][]*ApiMethod
	order    map[*ApiMethod]int
	argTypes map[string]string
	nullable map[string]bool
}

// NewApiMethodHelper indexes methods. nullableArgs are arguments every method
// of the api may omit, in addition to the Nullable list of each method. An
// argument declared with two different types is an error.
func NewApiMethodHelper(api string, methods []*ApiMethod, nullableArgs ...string) (*ApiMethodHelper, error) {
	h := &ApiMethodHelper{
		api:      api,
		methods:  methods,
		byName:   make(map[string][]*ApiMethod),
		order:    make(map[*ApiMethod]int, len(methods)),
		argTypes: make(map[string]string),
		nullable: make(map[string]bool),
	}
	for _, name := range nullableArgs {
		h.nullable[name] = true
	}
	for i, m := range methods {
		if m.Api == "" {
			m.Api = api
		}
		if m.Invoke == nil {
			return nil, fmt.Errorf("%w: method %s has no invoke function", types.ErrIllegalArgument, m)
		}
		h.order[m] = i
		h.byName[m.Name] = append(h.byName[m.Name], m)
		for _, arg := range m.Args {
			if t, ok := h.argTypes[arg.Name]; ok && t != arg.Type {
				return nil, fmt.Errorf("%w: argument %s of api %s declared as %s and %s",
					types.ErrIllegalArgument, arg.Name, api, t, arg.Type)
			}
			h.argTypes[arg.Name] = arg.Type
		}
		for _, name := range m.Nullable {
			h.nullable[name] = true
		}
	}
	return h, nil
}

// MustNewApiMethodHelper is NewApiMethodHelper for static declarations.
func MustNewApiMethodHelper(api string, methods []*ApiMethod, nullableArgs ...string) *ApiMethodHelper {
	h, err := NewApiMethodHelper(api, methods, nullableArgs...)
	if err != nil {
		panic(err)
	}
	return h
}

// Api returns the api name.
func (h *ApiMethodHelper) Api() string {
	return h.api
}

// Methods returns every method in declaration order.
func (h *ApiMethodHelper) Methods() []*ApiMethod {
	return append([]*ApiMethod(nil), h.methods...)
}

// GetCandidateMethods returns the overloads of name that take every one of
// argNames, in declaration order. Without argNames all overloads are
// returned.
func (h *ApiMethodHelper) GetCandidateMethods(name string, argNames ...string) []*ApiMethod {
	methods := h.byName[name]
	if len(argNames) == 0 {
		return append([]*ApiMethod(nil), methods...)
	}
	var result []*ApiMethod
	for _, m := range methods {
		if containsAll(m.ArgNames(), argNames) {
			result = append(result, m)
		}
	}
	return result
}

// FilterMethods keeps the methods matching argNames with matchType.
func (h *ApiMethodHelper) FilterMethods(methods []*ApiMethod, matchType MatchType, argNames ...string) []*ApiMethod {
	var withNullable []string
	if len(h.nullable) > 0 {
		withNullable = append(withNullable, argNames...)
		for name := range h.nullable {
			withNullable = append(withNullable, name)
		}
	}
	var result, extraArgs, nullArgs []*ApiMethod
	for _, m := range methods {
		methodArgs := m.ArgNames()
		switch matchType {
		case Exact:
			if containsAll(methodArgs, argNames) && containsAll(argNames, methodArgs) {
				result = append(result, m)
			}
		case Subset:
			if containsAll(methodArgs, argNames) {
				result = append(result, m)
			}
		default:
			if containsAll(argNames, methodArgs) {
				if containsAll(methodArgs, argNames) {
					result = append(result, m)
				} else if len(result) == 0 {
					extraArgs = append(extraArgs, m)
				}
			} else if len(result) == 0 && len(extraArgs) == 0 && withNullable != nil &&
				containsAll(withNullable, methodArgs) {
				nullArgs = append(nullArgs, m)
			}
		}
	}
	switch {
	case len(result) > 0:
		return result
	case len(extraArgs) > 0:
		return extraArgs
	default:
		return nullArgs
	}
}

// GetMissingProperties returns the arguments of the overloads of name that
// are not in argNames, sorted.
func (h *ApiMethodHelper) GetMissingProperties(name string, argNames ...string) []string {
	supplied := toSet(argNames)
	missing := make(map[string]bool)
	for _, m := range h.byName[name] {
		for _, a := range m.ArgNames() {
			if !supplied[a] {
				missing[a] = true
			}
		}
	}
	return sortedKeys(missing)
}

// AllArguments returns the names of every argument of the api, sorted.
func (h *ApiMethodHelper) AllArguments() []string {
	all := make(map[string]bool, len(h.argTypes))
	for name := range h.argTypes {
		all[name] = true
	}
	return sortedKeys(all)
}

// GetType returns the declared type of arg.
func (h *ApiMethodHelper) GetType(arg string) (string, bool) {
	t, ok := h.argTypes[arg]
	return t, ok
}

// IsNullable reports whether arg may be omitted.
func (h *ApiMethodHelper) IsNullable(arg string) bool {
	return h.nullable[arg]
}

// GetHighestPriorityMethod picks one of methods: highest Priority first,
// then most arguments, then declaration order.
func (h *ApiMethodHelper) GetHighestPriorityMethod(methods []*ApiMethod) *ApiMethod {
	if len(methods) == 0 {
		return nil
	}
	sorted := append([]*ApiMethod(nil), methods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if len(a.Args) != len(b.Args) {
			return len(a.Args) > len(b.Args)
		}
		return h.order[a] < h.order[b]
	})
	return sorted[0]
}

// InvokeMethod converts the supplied properties of the method arguments to
// their declared types and invokes method on proxy. Properties that are not
// method arguments are ignored. Invocation failures and panics are returned
// as *RuntimeError.
func (h *ApiMethodHelper) InvokeMethod(ctx context.Context, proxy any, method *ApiMethod, properties map[string]any) (result any, err error) {
	args := make(map[string]any, len(method.Args))
	for _, arg := range method.Args {
		value, ok := properties[arg.Name]
		if !ok || value == nil {
			continue
		}
		converted, err := cast.Convert(value, arg.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %s of %s: %s", types.ErrIllegalArgument, arg.Name, method, err)
		}
		args[arg.Name] = converted
	}
	defer func() {
		if caught := recover(); caught != nil {
			result, err = nil, &RuntimeError{Method: method.String(), Cause: runtime.PanicError(caught)}
		}
	}()
	result, err = method.Invoke(ctx, proxy, args)
	if err != nil {
		return nil, &RuntimeError{Method: method.String(), Cause: err}
	}
	return result, nil
}

func containsAll(set []string, items []string) bool {
	s := toSet(set)
	for _, item := range items {
		if !s[item] {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
