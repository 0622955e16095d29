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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/predicate"
)

// FilterService keeps the filters of every channel and evaluates them.
//
// Each channel holds an immutable slice sorted by (priority, id). Readers
// take the slice under the read lock and evaluate it without holding any
// lock, writers replace the slice under the write lock.
type FilterService struct {
	logger  types.Logger
	metrics *Metrics
	now     func() time.Time

	lock     sync.RWMutex
	channels map[string][]*PrioritizedFilter
}

// NewFilterService creates an empty service. metrics may be nil.
func NewFilterService(logger types.Logger, metrics *Metrics) *FilterService {
	return &FilterService{
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		channels: make(map[string][]*PrioritizedFilter),
	}
}

// InitializeChannelFilters creates the filter registry of channel if it does
// not exist.
func (s *FilterService) InitializeChannelFilters(channel string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.channels[channel]; !ok {
		s.channels[channel] = nil
		s.metrics.filterCount(channel, 0)
	}
}

// CreateFilter creates a filter that is not subscribed on any channel yet.
func (s *FilterService) CreateFilter(id string, priority int, predicate types.Predicate, endpoint string) *PrioritizedFilter {
	return &PrioritizedFilter{
		Id:         id,
		Priority:   priority,
		Predicate:  predicate,
		Endpoint:   endpoint,
		Expression: fmt.Sprint(predicate),
		stats:      newStatistics(),
	}
}

func (s *FilterService) validate(filter *PrioritizedFilter, channel string) error {
	if channel == "" {
		return fmt.Errorf("%w: channel is required", types.ErrIllegalArgument)
	}
	if filter == nil || filter.Id == "" {
		return fmt.Errorf("%w: filter id is required", types.ErrIllegalArgument)
	}
	if filter.Predicate == nil {
		return fmt.Errorf("%w: filter %s has no predicate", types.ErrIllegalArgument, filter.Id)
	}
	if filter.Endpoint == "" {
		return fmt.Errorf("%w: filter %s has no destination", types.ErrIllegalArgument, filter.Id)
	}
	if filter.stats == nil {
		filter.stats = newStatistics()
	}
	return nil
}

// AddFilterForChannel subscribes filter on channel, creating the channel if
// needed. A filter with the same id on the channel is an ErrFilterExists.
func (s *FilterService) AddFilterForChannel(filter *PrioritizedFilter, channel string) error {
	if err := s.validate(filter, channel); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	current := s.channels[channel]
	if indexOf(current, filter.Id) >= 0 {
		return fmt.Errorf("%w: id=%s channel=%s", ErrFilterExists, filter.Id, channel)
	}
	next := make([]*PrioritizedFilter, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, filter)
	s.store(channel, next)
	types.Debugf(s.logger, "dynamic router channel %s: added %s", channel, filter)
	return nil
}

// UpdateFilterForChannel replaces the filter with the same id on channel.
// The replacement keeps the match statistics of the replaced filter, and its
// owner unless the replacement names one.
func (s *FilterService) UpdateFilterForChannel(filter *PrioritizedFilter, channel string) error {
	if err := s.validate(filter, channel); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	current := s.channels[channel]
	i := indexOf(current, filter.Id)
	if i < 0 {
		return fmt.Errorf("%w: id=%s channel=%s", ErrFilterNotFound, filter.Id, channel)
	}
	if filter.Owner == "" {
		filter.Owner = current[i].Owner
	}
	filter.stats = current[i].stats
	next := make([]*PrioritizedFilter, len(current))
	copy(next, current)
	next[i] = filter
	s.store(channel, next)
	types.Debugf(s.logger, "dynamic router channel %s: updated %s", channel, filter)
	return nil
}

// RemoveFilterById unsubscribes a filter. It reports whether it existed.
func (s *FilterService) RemoveFilterById(id string, channel string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	current := s.channels[channel]
	i := indexOf(current, id)
	if i < 0 {
		return false
	}
	next := make([]*PrioritizedFilter, 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	s.store(channel, next)
	s.metrics.filterRemoved(channel, id)
	types.Debugf(s.logger, "dynamic router channel %s: removed filter %s", channel, id)
	return true
}

// RemoveFiltersOwnedBy unsubscribes every filter subscribed by route
// routeId, on all channels. It returns the number of removed filters.
func (s *FilterService) RemoveFiltersOwnedBy(routeId string) int {
	if routeId == "" {
		return 0
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	removed := 0
	for channel, current := range s.channels {
		next := make([]*PrioritizedFilter, 0, len(current))
		for _, f := range current {
			if f.Owner != routeId {
				next = append(next, f)
			} else {
				s.metrics.filterRemoved(channel, f.Id)
			}
		}
		if len(next) != len(current) {
			removed += len(current) - len(next)
			s.store(channel, next)
		}
	}
	if removed > 0 {
		types.Infof(s.logger, "dynamic router removed %d filters of stopped route %s", removed, routeId)
	}
	return removed
}

// GetFilter returns the filter id of channel.
func (s *FilterService) GetFilter(id string, channel string) (*PrioritizedFilter, bool) {
	filters := s.snapshot(channel)
	if i := indexOf(filters, id); i >= 0 {
		return filters[i], true
	}
	return nil, false
}

// GetFiltersForChannel returns the filters of channel in evaluation order.
func (s *FilterService) GetFiltersForChannel(channel string) []*PrioritizedFilter {
	filters := s.snapshot(channel)
	return append([]*PrioritizedFilter(nil), filters...)
}

// GetChannels returns the sorted channel names.
func (s *FilterService) GetChannels() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	channels := make([]string, 0, len(s.channels))
	for c := range s.channels {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return channels
}

// GetStatisticsForChannel returns the statistics of the filters of channel
// in evaluation order.
func (s *FilterService) GetStatisticsForChannel(channel string) []FilterStatistics {
	filters := s.snapshot(channel)
	stats := make([]FilterStatistics, 0, len(filters))
	for _, f := range filters {
		stats = append(stats, f.Statistics())
	}
	return stats
}

// GetMatchingEndpointsForExchangeByChannel evaluates the filters of channel
// against exchange in (priority, id) order and returns the destinations of
// the matching ones, joined with ",". With firstMatchOnly the first match
// wins. A predicate error aborts the evaluation and is returned as is.
//
// When nothing matches, the body is moved to the HeaderOriginalBody header,
// replaced with a diagnostic text and "" is returned. The drop is logged at
// WARN when warnDroppedMessage is set, DEBUG otherwise.
func (s *FilterService) GetMatchingEndpointsForExchangeByChannel(exchange *types.Exchange, channel string, firstMatchOnly bool, warnDroppedMessage bool) (string, error) {
	filters := s.snapshot(channel)
	unbind := predicate.BindEnv(exchange)
	defer unbind()
	var endpoints []string
	for _, f := range filters {
		matched, err := f.Predicate.Matches(exchange)
		if err != nil {
			return "", err
		}
		if !matched {
			continue
		}
		f.stats.record(s.now())
		s.metrics.matched(channel, f.Id)
		if firstMatchOnly {
			return f.Endpoint, nil
		}
		endpoints = append(endpoints, f.Endpoint)
	}
	if len(endpoints) > 0 {
		return strings.Join(endpoints, ","), nil
	}
	s.drop(exchange, channel, warnDroppedMessage)
	return "", nil
}

func (s *FilterService) drop(exchange *types.Exchange, channel string, warn bool) {
	s.metrics.droppedMessage(channel)
	msg := fmt.Sprintf("DynamicRouter channel '%s': no filters matched for an exchange with id '%s' from route '%s'. "+
		"The original body is in the %s header.", channel, exchange.Id, exchange.FromRouteId, HeaderOriginalBody)
	if warn {
		types.Warnf(s.logger, "%s", msg)
	} else {
		types.Debugf(s.logger, "%s", msg)
	}
	if exchange.In.Headers == nil {
		exchange.In.Headers = types.NewHeaders()
	}
	exchange.In.Headers.PutValue(HeaderOriginalBody, exchange.In.Body)
	exchange.In.Body = msg
}

func (s *FilterService) snapshot(channel string) []*PrioritizedFilter {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.channels[channel]
}

// store sorts next and publishes it. Callers hold the write lock.
func (s *FilterService) store(channel string, next []*PrioritizedFilter) {
	sort.SliceStable(next, func(i, j int) bool {
		return less(next[i], next[j])
	})
	s.channels[channel] = next
	s.metrics.filterCount(channel, len(next))
}

func indexOf(filters []*PrioritizedFilter, id string) int {
	for i, f := range filters {
		if f.Id == id {
			return i
		}
	}
	return -1
}
