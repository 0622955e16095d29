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

// Package aggregate provides the aggregation strategies recipient lists use
// to merge replies. A strategy is selected by name or by `#bean` reference.
package aggregate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/rulego/rulego-connectors/utils/json"
)

const (
	UseLatest   = "useLatest"
	UseOriginal = "useOriginal"
	GroupedBody = "groupedBody"
	StringJoin  = "stringJoin"
)

// HeaderAggregatedSize holds the number of exchanges merged so far.
const HeaderAggregatedSize = "AggregatedSize"

// Resolve returns the strategy for name: a builtin strategy name or a
// `#bean` reference. An empty name returns UseLatestStrategy.
func Resolve(config types.Config, name string) (types.AggregationStrategy, error) {
	if types.IsRef(name) {
		return types.LookupRef[types.AggregationStrategy](config.Beans, name)
	}
	switch name {
	case "", UseLatest:
		return UseLatestStrategy(), nil
	case UseOriginal:
		return UseOriginalStrategy(), nil
	case GroupedBody:
		return NewGroupedBodyStrategy(), nil
	case StringJoin:
		return NewStringJoinStrategy("\n"), nil
	}
	// bare bean names are accepted as well
	if s, err := types.LookupRef[types.AggregationStrategy](config.Beans, name); err == nil {
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown aggregation strategy %s", types.ErrIllegalArgument, name)
}

// UseLatestStrategy keeps the most recent reply. The first error of any
// reply is kept as well.
func UseLatestStrategy() types.AggregationStrategy {
	return types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) *types.Exchange {
		if newExchange == nil {
			return oldExchange
		}
		if oldExchange != nil && oldExchange.Err != nil && newExchange.Err == nil {
			newExchange.Err = oldExchange.Err
		}
		return newExchange
	})
}

// OriginalStrategy ignores replies: the dispatching exchange keeps its own
// message. Errors of replies are still propagated.
type OriginalStrategy struct{}

// UseOriginalStrategy returns the strategy keeping the original message.
func UseOriginalStrategy() types.AggregationStrategy {
	return &OriginalStrategy{}
}

func (s *OriginalStrategy) Aggregate(oldExchange, newExchange *types.Exchange) *types.Exchange {
	if oldExchange == nil {
		return newExchange
	}
	if newExchange != nil && newExchange.Err != nil && oldExchange.Err == nil {
		oldExchange.Err = newExchange.Err
	}
	return oldExchange
}

// KeepsOriginal reports whether strategy leaves the original message in place.
func KeepsOriginal(strategy types.AggregationStrategy) bool {
	_, ok := strategy.(*OriginalStrategy)
	return ok
}

// GroupedBodyStrategy collects every reply body into a json array, in
// aggregation order. Bodies that are json are embedded as json.
type GroupedBodyStrategy struct {
	lock sync.Mutex
}

func NewGroupedBodyStrategy() *GroupedBodyStrategy {
	return &GroupedBodyStrategy{}
}

const groupedBodiesProperty = "GroupedBodies"

func (s *GroupedBodyStrategy) Aggregate(oldExchange, newExchange *types.Exchange) *types.Exchange {
	s.lock.Lock()
	defer s.lock.Unlock()
	if newExchange == nil {
		return oldExchange
	}
	result := oldExchange
	if result == nil {
		result = newExchange.Copy()
	}
	var bodies []interface{}
	if v, ok := result.GetProperty(groupedBodiesProperty); ok {
		bodies = v.([]interface{})
	}
	bodies = append(bodies, json.ParseBody(newExchange.In.Body))
	result.SetProperty(groupedBodiesProperty, bodies)
	body, _ := json.MarshalString(bodies)
	result.In.Body = body
	result.In.DataType = types.JSON
	result.In.Headers.PutValue(HeaderAggregatedSize, fmt.Sprint(len(bodies)))
	if newExchange.Err != nil && result.Err == nil {
		result.Err = newExchange.Err
	}
	return result
}

// StringJoinStrategy concatenates reply bodies with a separator.
type StringJoinStrategy struct {
	Separator string
}

func NewStringJoinStrategy(separator string) *StringJoinStrategy {
	return &StringJoinStrategy{Separator: separator}
}

func (s *StringJoinStrategy) Aggregate(oldExchange, newExchange *types.Exchange) *types.Exchange {
	if newExchange == nil {
		return oldExchange
	}
	if oldExchange == nil {
		result := newExchange.Copy()
		result.In.Headers.PutValue(HeaderAggregatedSize, "1")
		return result
	}
	var b strings.Builder
	b.WriteString(oldExchange.In.Body)
	b.WriteString(s.Separator)
	b.WriteString(newExchange.In.Body)
	oldExchange.In.Body = b.String()
	size := cast.ToInt(oldExchange.In.Headers.GetValue(HeaderAggregatedSize))
	oldExchange.In.Headers.PutValue(HeaderAggregatedSize, fmt.Sprint(size+1))
	if newExchange.Err != nil && oldExchange.Err == nil {
		oldExchange.Err = newExchange.Err
	}
	return oldExchange
}
