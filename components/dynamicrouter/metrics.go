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

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports router activity to prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	matches *prometheus.CounterVec
	dropped *prometheus.CounterVec
	filters *prometheus.GaugeVec
}

// NewMetrics registers the router collectors on registerer. Collectors
// already registered by another router are reused. A nil registerer returns
// nil metrics.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		return nil, nil
	}
	m := &Metrics{
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynamic_router_filter_matches_total",
			Help: "Number of exchanges matched by a dynamic router filter.",
		}, []string{"channel", "filter"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynamic_router_dropped_messages_total",
			Help: "Number of exchanges no dynamic router filter matched.",
		}, []string{"channel"}),
		filters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dynamic_router_filters",
			Help: "Number of filters subscribed on a dynamic router channel.",
		}, []string{"channel"}),
	}
	var err error
	if m.matches, err = register(registerer, m.matches); err != nil {
		return nil, err
	}
	if m.dropped, err = register(registerer, m.dropped); err != nil {
		return nil, err
	}
	if m.filters, err = register(registerer, m.filters); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

func (m *Metrics) matched(channel, filterId string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(channel, filterId).Inc()
}

// filterRemoved deletes the match series of a filter that left channel.
func (m *Metrics) filterRemoved(channel, filterId string) {
	if m == nil {
		return
	}
	m.matches.DeleteLabelValues(channel, filterId)
}

func (m *Metrics) droppedMessage(channel string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(channel).Inc()
}

func (m *Metrics) filterCount(channel string, count int) {
	if m == nil {
		return
	}
	m.filters.WithLabelValues(channel).Set(float64(count))
}
