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

package metrics

import (
	"sync/atomic"
)

// RouteMetrics counts exchanges handled by a route.
type RouteMetrics struct {
	Inflight  int64 // Number of exchanges currently being processed
	Total     int64 // Total number of exchanges received
	Failed    int64 // Number of exchanges that completed with an error
	Completed int64 // Number of exchanges that completed without error
}

// NewRouteMetrics creates a new instance of RouteMetrics.
func NewRouteMetrics() *RouteMetrics {
	return &RouteMetrics{}
}

// Begin records an exchange entering the route.
func (m *RouteMetrics) Begin() {
	atomic.AddInt64(&m.Total, 1)
	atomic.AddInt64(&m.Inflight, 1)
}

// Done records an exchange leaving the route.
func (m *RouteMetrics) Done(err error) {
	atomic.AddInt64(&m.Inflight, -1)
	if err != nil {
		atomic.AddInt64(&m.Failed, 1)
	} else {
		atomic.AddInt64(&m.Completed, 1)
	}
}

// Get returns a copy of the current metrics.
func (m *RouteMetrics) Get() RouteMetrics {
	return RouteMetrics{
		Inflight:  atomic.LoadInt64(&m.Inflight),
		Total:     atomic.LoadInt64(&m.Total),
		Failed:    atomic.LoadInt64(&m.Failed),
		Completed: atomic.LoadInt64(&m.Completed),
	}
}

// Reset resets all metrics to zero.
func (m *RouteMetrics) Reset() {
	atomic.StoreInt64(&m.Inflight, 0)
	atomic.StoreInt64(&m.Total, 0)
	atomic.StoreInt64(&m.Failed, 0)
	atomic.StoreInt64(&m.Completed, 0)
}
