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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/predicate"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(logger *test.RecordingLogger) *FilterService {
	if logger == nil {
		logger = &test.RecordingLogger{}
	}
	return NewFilterService(types.NewLevelLogger(logger, types.DebugLevel), nil)
}

func exchange(body string) *types.Exchange {
	return types.NewExchangeWithBody(context.Background(), body)
}

func mustExpr(t *testing.T, expression string) types.Predicate {
	p, err := predicate.New(types.NewConfig(), predicate.LanguageExpr, expression)
	require.Nil(t, err)
	return p
}

func TestFirstMatchAndAllMatch(t *testing.T) {
	s := newService(nil)
	s.InitializeChannelFilters("test")
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("B", 2, predicate.True, "mock:b"), "test"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("A", 1, predicate.True, "mock:a"), "test"))

	first, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "test", true, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:a", first)

	all, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "test", false, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:a,mock:b", all)
}

func TestOrderingByPriorityThenId(t *testing.T) {
	s := newService(nil)
	for _, f := range []*PrioritizedFilter{
		s.CreateFilter("c", 5, predicate.True, "mock:c"),
		s.CreateFilter("b", 5, predicate.True, "mock:b"),
		s.CreateFilter("z", 1, predicate.False, "mock:z"),
		s.CreateFilter("a", 10, predicate.True, "mock:a"),
	} {
		require.Nil(t, s.AddFilterForChannel(f, "ch"))
	}
	var ids []string
	for _, f := range s.GetFiltersForChannel("ch") {
		ids = append(ids, f.Id)
	}
	assert.Equal(t, []string{"z", "b", "c", "a"}, ids)

	first, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", true, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:b", first)
	all, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", false, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:b,mock:c,mock:a", all)
}

func TestPredicateOnBody(t *testing.T) {
	s := newService(nil)
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("big", 1, mustExpr(t, "msg.amount > 100"), "mock:big"), "orders"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("any", 9, predicate.True, "mock:any"), "orders"))

	dest, err := s.GetMatchingEndpointsForExchangeByChannel(exchange(`{"amount":500}`), "orders", true, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:big", dest)
	dest, err = s.GetMatchingEndpointsForExchangeByChannel(exchange(`{"amount":5}`), "orders", true, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:any", dest)
}

func TestDuplicateAddAndUpdate(t *testing.T) {
	s := newService(nil)
	owned := s.CreateFilter("A", 1, predicate.True, "mock:a")
	owned.Owner = "subscriber"
	require.Nil(t, s.AddFilterForChannel(owned, "ch"))
	err := s.AddFilterForChannel(s.CreateFilter("A", 0, predicate.True, "mock:other"), "ch")
	assert.True(t, errors.Is(err, ErrFilterExists))
	f, ok := s.GetFilter("A", "ch")
	require.True(t, ok)
	assert.Equal(t, "mock:a", f.Endpoint)
	_, err = s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", true, false)
	require.Nil(t, err)

	require.Nil(t, s.UpdateFilterForChannel(s.CreateFilter("A", 3, predicate.True, "mock:updated"), "ch"))
	f, _ = s.GetFilter("A", "ch")
	assert.Equal(t, "mock:updated", f.Endpoint)
	assert.Equal(t, 3, f.Priority)
	// an update without owner keeps the subscriber and the statistics
	assert.Equal(t, "subscriber", f.Owner)
	assert.Equal(t, int64(1), f.Statistics().Count)
	assert.Equal(t, 1, s.RemoveFiltersOwnedBy("subscriber"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("A", 3, predicate.True, "mock:updated"), "ch"))
	assert.Equal(t, 1, len(s.GetFiltersForChannel("ch")))

	err = s.UpdateFilterForChannel(s.CreateFilter("missing", 1, predicate.True, "mock:x"), "ch")
	assert.True(t, errors.Is(err, ErrFilterNotFound))

	// the same id may exist on another channel
	assert.Nil(t, s.AddFilterForChannel(s.CreateFilter("A", 1, predicate.True, "mock:a"), "other"))
	assert.Equal(t, []string{"ch", "other"}, s.GetChannels())
}

func TestInvalidFilters(t *testing.T) {
	s := newService(nil)
	assert.True(t, errors.Is(s.AddFilterForChannel(s.CreateFilter("", 1, predicate.True, "mock:a"), "ch"), types.ErrIllegalArgument))
	assert.True(t, errors.Is(s.AddFilterForChannel(s.CreateFilter("a", 1, nil, "mock:a"), "ch"), types.ErrIllegalArgument))
	assert.True(t, errors.Is(s.AddFilterForChannel(s.CreateFilter("a", 1, predicate.True, ""), "ch"), types.ErrIllegalArgument))
	assert.True(t, errors.Is(s.AddFilterForChannel(s.CreateFilter("a", 1, predicate.True, "mock:a"), ""), types.ErrIllegalArgument))
}

func TestNoMatchWithWarning(t *testing.T) {
	logger := &test.RecordingLogger{}
	s := newService(logger)
	s.InitializeChannelFilters("empty")
	ex := exchange("original")
	dest, err := s.GetMatchingEndpointsForExchangeByChannel(ex, "empty", true, true)
	require.Nil(t, err)
	assert.Equal(t, "", dest)
	assert.Equal(t, "original", ex.In.Headers.GetValue(HeaderOriginalBody))
	assert.Contains(t, ex.In.Body, "empty")
	assert.True(t, logger.Contains("[WARN]", "channel 'empty'"))
}

func TestNoMatchWithoutWarningLogsDebug(t *testing.T) {
	logger := &test.RecordingLogger{}
	s := newService(logger)
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("never", 1, predicate.False, "mock:never"), "ch"))
	ex := exchange("original")
	dest, err := s.GetMatchingEndpointsForExchangeByChannel(ex, "ch", false, false)
	require.Nil(t, err)
	assert.Equal(t, "", dest)
	assert.Equal(t, "original", ex.In.Headers.GetValue(HeaderOriginalBody))
	assert.True(t, logger.Contains("[DEBUG]", "channel 'ch'"))
	assert.False(t, logger.Contains("[WARN]"))
}

func TestPredicateErrorPropagates(t *testing.T) {
	s := newService(nil)
	boom := errors.New("boom")
	failing := types.PredicateFunc(func(*types.Exchange) (bool, error) { return false, boom })
	var later bool
	after := types.PredicateFunc(func(*types.Exchange) (bool, error) { later = true; return true, nil })
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("a", 1, failing, "mock:a"), "ch"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("b", 2, after, "mock:b"), "ch"))
	ex := exchange("x")
	_, err := s.GetMatchingEndpointsForExchangeByChannel(ex, "ch", false, true)
	assert.Equal(t, boom, err)
	assert.False(t, later)
	assert.Equal(t, "x", ex.In.Body)
}

func TestRemoveFilters(t *testing.T) {
	s := newService(nil)
	a := s.CreateFilter("a", 1, predicate.True, "mock:a")
	a.Owner = "route1"
	b := s.CreateFilter("b", 1, predicate.True, "mock:b")
	b.Owner = "route2"
	c := s.CreateFilter("c", 1, predicate.True, "mock:c")
	c.Owner = "route1"
	require.Nil(t, s.AddFilterForChannel(a, "one"))
	require.Nil(t, s.AddFilterForChannel(b, "one"))
	require.Nil(t, s.AddFilterForChannel(c, "two"))

	assert.Equal(t, 2, s.RemoveFiltersOwnedBy("route1"))
	assert.Equal(t, 0, s.RemoveFiltersOwnedBy(""))
	assert.Equal(t, 1, len(s.GetFiltersForChannel("one")))
	assert.Equal(t, 0, len(s.GetFiltersForChannel("two")))

	assert.True(t, s.RemoveFilterById("b", "one"))
	assert.False(t, s.RemoveFilterById("b", "one"))
}

func TestStatistics(t *testing.T) {
	s := newService(nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("a", 1, predicate.True, "mock:a"), "ch"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("b", 2, predicate.True, "mock:b"), "ch"))
	for i := 0; i < 3; i++ {
		_, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", true, false)
		require.Nil(t, err)
	}
	stats := s.GetStatisticsForChannel("ch")
	require.Equal(t, 2, len(stats))
	assert.Equal(t, "a", stats[0].FilterId)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, 2*time.Second, stats[0].LastMatch.Sub(stats[0].FirstMatch))
	assert.Equal(t, int64(0), stats[1].Count)
	assert.True(t, stats[1].FirstMatch.IsZero())
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.Nil(t, err)
	// a second router on the same registry shares the collectors
	again, err := NewMetrics(registry)
	require.Nil(t, err)
	assert.True(t, metrics.matches == again.matches)

	s := NewFilterService(types.NewConfig().Logger, metrics)
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("a", 1, mustExpr(t, `body == "hit"`), "mock:a"), "ch"))
	_, _ = s.GetMatchingEndpointsForExchangeByChannel(exchange("hit"), "ch", true, false)
	_, _ = s.GetMatchingEndpointsForExchangeByChannel(exchange("miss"), "ch", true, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.matches.WithLabelValues("ch", "a")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.dropped.WithLabelValues("ch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.filters.WithLabelValues("ch")))

	// removed filters leave no match series behind
	assert.True(t, s.RemoveFilterById("a", "ch"))
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.matches))
	owned := s.CreateFilter("b", 1, predicate.True, "mock:b")
	owned.Owner = "route1"
	require.Nil(t, s.AddFilterForChannel(owned, "ch"))
	_, _ = s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", true, false)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.matches))
	assert.Equal(t, 1, s.RemoveFiltersOwnedBy("route1"))
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.matches))

	none, err := NewMetrics(nil)
	assert.Nil(t, err)
	assert.Nil(t, none)
	none.matched("ch", "a")
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	s := newService(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("f%d-%d", i, j)
				_ = s.AddFilterForChannel(s.CreateFilter(id, j, predicate.True, "mock:"+id), "ch")
				if j%2 == 0 {
					s.RemoveFilterById(id, "ch")
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := s.GetMatchingEndpointsForExchangeByChannel(exchange("x"), "ch", false, false)
				assert.Nil(t, err)
			}
		}()
	}
	wg.Wait()
	filters := s.GetFiltersForChannel("ch")
	assert.Equal(t, 8*25, len(filters))
	for i := 1; i < len(filters); i++ {
		assert.False(t, less(filters[i], filters[i-1]))
	}
}

func TestFiltersShareEnvironment(t *testing.T) {
	s := newService(nil)
	var seen []map[string]interface{}
	record := types.PredicateFunc(func(exchange *types.Exchange) (bool, error) {
		env := predicate.Env(exchange)
		env["evaluations"] = len(seen) + 1
		seen = append(seen, env)
		return true, nil
	})
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("a", 1, record, "mock:a"), "ch"))
	require.Nil(t, s.AddFilterForChannel(s.CreateFilter("b", 2, record, "mock:b"), "ch"))

	ex := exchange(`{"amount":1}`)
	dest, err := s.GetMatchingEndpointsForExchangeByChannel(ex, "ch", false, false)
	require.Nil(t, err)
	assert.Equal(t, "mock:a,mock:b", dest)
	require.Equal(t, 2, len(seen))
	// the second filter sees what the first wrote: one environment per call
	assert.Equal(t, 2, seen[1]["evaluations"])
	assert.Equal(t, 2, seen[0]["evaluations"])
	_, ok := predicate.Env(ex)["evaluations"]
	assert.False(t, ok)
}
