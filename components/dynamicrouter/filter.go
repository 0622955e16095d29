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
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
)

// PrioritizedFilter sends matching exchanges to Endpoint. Filters of a
// channel are evaluated by ascending Priority, then Id.
type PrioritizedFilter struct {
	Id        string
	Priority  int
	Predicate types.Predicate
	Endpoint  string
	// Owner is the id of the route that subscribed the filter. Its filters
	// are removed when the route stops.
	Owner string
	// Expression and Language describe Predicate for listings.
	Expression string
	Language   string

	stats *Statistics
}

// Statistics returns the match statistics of the filter.
func (f *PrioritizedFilter) Statistics() FilterStatistics {
	return f.stats.snapshot(f.Id)
}

func (f *PrioritizedFilter) String() string {
	return fmt.Sprintf("PrioritizedFilter [id: %s, priority: %d, predicate: %s, endpoint: %s]",
		f.Id, f.Priority, f.Expression, f.Endpoint)
}

// less orders filters by priority, then id.
func less(a, b *PrioritizedFilter) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Id < b.Id
}

// Statistics counts the matches of one filter.
type Statistics struct {
	lock       sync.Mutex
	count      int64
	firstMatch time.Time
	lastMatch  time.Time
}

func newStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) record(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.count == 0 {
		s.firstMatch = now
	}
	s.count++
	s.lastMatch = now
}

func (s *Statistics) snapshot(filterId string) FilterStatistics {
	s.lock.Lock()
	defer s.lock.Unlock()
	return FilterStatistics{
		FilterId:   filterId,
		Count:      s.count,
		FirstMatch: s.firstMatch,
		LastMatch:  s.lastMatch,
	}
}

// FilterStatistics is a snapshot of the statistics of a filter.
type FilterStatistics struct {
	FilterId   string    `json:"filterId"`
	Count      int64     `json:"count"`
	FirstMatch time.Time `json:"firstMatch"`
	LastMatch  time.Time `json:"lastMatch"`
}

// FilterInfo describes a filter in control channel listings.
type FilterInfo struct {
	Id         string `json:"id"`
	Priority   int    `json:"priority"`
	Endpoint   string `json:"endpoint"`
	Predicate  string `json:"predicate,omitempty"`
	Language   string `json:"language,omitempty"`
	Owner      string `json:"owner,omitempty"`
	MatchCount int64  `json:"matchCount"`
}

func (f *PrioritizedFilter) info() FilterInfo {
	return FilterInfo{
		Id:         f.Id,
		Priority:   f.Priority,
		Endpoint:   f.Endpoint,
		Predicate:  f.Expression,
		Language:   f.Language,
		Owner:      f.Owner,
		MatchCount: f.Statistics().Count,
	}
}
