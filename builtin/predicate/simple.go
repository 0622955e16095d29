/*
 * Copyright 2024 The RuleGo Authors.
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

package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rulego/rulego-connectors/api/types"
)

// HeaderPredicate tests a single header.
type HeaderPredicate struct {
	Name   string
	Value  string
	negate bool
	// presence only
	exists bool
}

// NewHeaderPredicate parses `name`, `name==value` or `name!=value`.
func NewHeaderPredicate(_ types.Config, expression string) (types.Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty header expression")
	}
	if name, value, ok := strings.Cut(expression, "!="); ok {
		return &HeaderPredicate{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value), negate: true}, nil
	}
	if name, value, ok := strings.Cut(expression, "=="); ok {
		return &HeaderPredicate{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}, nil
	}
	return &HeaderPredicate{Name: expression, exists: true}, nil
}

func (p *HeaderPredicate) Matches(exchange *types.Exchange) (bool, error) {
	v, ok := exchange.In.Headers[p.Name]
	if p.exists {
		return ok, nil
	}
	return (v == p.Value) != p.negate, nil
}

// ConstantPredicate always returns the same result.
type ConstantPredicate bool

func NewConstantPredicate(_ types.Config, expression string) (types.Predicate, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(expression))
	if err != nil {
		return nil, err
	}
	return ConstantPredicate(b), nil
}

func (p ConstantPredicate) Matches(*types.Exchange) (bool, error) {
	return bool(p), nil
}

func (p ConstantPredicate) String() string {
	return strconv.FormatBool(bool(p))
}

// True and False are ready made constant predicates.
var (
	True  types.Predicate = ConstantPredicate(true)
	False types.Predicate = ConstantPredicate(false)
)
