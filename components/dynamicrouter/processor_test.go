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
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/predicate"
	"github.com/rulego/rulego-connectors/components/recipientlist"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessor(t *testing.T, ctx *test.EngineContext, service *FilterService, mode string) *Processor {
	list, err := recipientlist.New(ctx, HeaderRecipientList, recipientlist.Configuration{})
	require.Nil(t, err)
	p := NewProcessor("ch", mode, true, service, list)
	require.Nil(t, p.Start())
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestProcessorDispatches(t *testing.T) {
	a, b := &test.Collector{}, &test.Collector{}
	ctx := test.NewEngineContext(types.NewConfig()).Handle("mock:a", a).Handle("mock:b", b)
	service := newService(nil)
	require.Nil(t, service.AddFilterForChannel(service.CreateFilter("A", 1, predicate.True, "mock:a"), "ch"))
	require.Nil(t, service.AddFilterForChannel(service.CreateFilter("B", 2, predicate.True, "mock:b"), "ch"))

	first := newProcessor(t, ctx, service, ModeFirstMatch)
	require.Nil(t, first.Process(exchange("1")))
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 0, b.Count())

	all := newProcessor(t, ctx, service, ModeAllMatch)
	ex := exchange("2")
	done := make(chan struct{})
	if !all.ProcessAsync(ex, func(bool) { close(done) }) {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	}
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, "mock:a,mock:b", ex.In.Headers.GetValue(HeaderRecipientList))
}

func TestProcessorPrepareError(t *testing.T) {
	boom := errors.New("boom")
	service := newService(nil)
	require.Nil(t, service.AddFilterForChannel(service.CreateFilter("A", 1,
		types.PredicateFunc(func(*types.Exchange) (bool, error) { return false, boom }), "mock:a"), "ch"))
	p := newProcessor(t, test.NewEngineContext(types.NewConfig()), service, ModeFirstMatch)

	ex := exchange("x")
	var doneSync bool
	assert.True(t, p.ProcessAsync(ex, func(sync bool) { doneSync = sync }))
	assert.True(t, doneSync)
	assert.Equal(t, boom, ex.Err)
	assert.Equal(t, boom, p.Process(exchange("y")))
}

func TestProcessorDropLeavesEmptyHeader(t *testing.T) {
	logger := &test.RecordingLogger{}
	service := newService(logger)
	service.InitializeChannelFilters("ch")
	p := newProcessor(t, test.NewEngineContext(types.NewConfig()), service, ModeFirstMatch)
	ex := exchange("body")
	require.Nil(t, p.Process(ex))
	assert.True(t, ex.In.Headers.Has(HeaderRecipientList))
	assert.Equal(t, "", ex.In.Headers.GetValue(HeaderRecipientList))
	assert.Equal(t, "body", ex.In.Headers.GetValue(HeaderOriginalBody))
	assert.True(t, logger.Contains("[WARN]"))
}
