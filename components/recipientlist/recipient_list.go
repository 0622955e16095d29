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

// Package recipientlist sends an exchange to the endpoints listed in one of
// its headers and merges the replies back into it.
//
//	recipient-list:Destinations?delimiter=;&parallelProcessing=true&timeout=2s
package recipientlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/aggregate"
	"github.com/rulego/rulego-connectors/utils/cache"
	"github.com/rulego/rulego-connectors/utils/runtime"
)

const (
	// DefaultDelimiter separates recipient uris.
	DefaultDelimiter = ","
	// PropertyRecipientEndpoint is set on every copy sent to a recipient.
	PropertyRecipientEndpoint = "RecipientListEndpoint"
	// PropertyRecipientIndex is the position of the recipient in the list.
	PropertyRecipientIndex = "RecipientListIndex"
)

// Configuration controls how recipients are called and replies merged.
type Configuration struct {
	// Delimiter separates uris in the header, "," by default.
	Delimiter string
	// ParallelProcessing sends to all recipients concurrently on the pool.
	ParallelProcessing bool
	// ParallelAggregate aggregates on the worker goroutines as replies arrive.
	ParallelAggregate bool
	// StopOnException stops at the first failed recipient and fails the exchange.
	StopOnException bool
	// IgnoreInvalidEndpoints skips uris that cannot be resolved.
	IgnoreInvalidEndpoints bool
	// Streaming aggregates replies in completion order rather than list order.
	Streaming bool
	// Timeout bounds a parallel dispatch. Replies arriving later are dropped.
	Timeout time.Duration
	// CacheSize is the size of the producer cache. 0 uses the default size,
	// a negative value disables caching.
	CacheSize int
	// ShareUnitOfWork is accepted for compatibility and has no effect.
	ShareUnitOfWork bool
	// OnPrepare is a `#bean` reference to a processor run on every copy
	// before it is sent.
	OnPrepare string
	// AggregationStrategy is a builtin strategy name or a `#bean` reference.
	AggregationStrategy string
	// ExecutorService is a `#bean` reference to the pool of parallel
	// dispatch. The engine pool is used when empty.
	ExecutorService string
}

// Validate checks option combinations that cannot work.
func (c Configuration) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", types.ErrIllegalArgument)
	}
	if c.Timeout > 0 && !c.ParallelProcessing {
		return fmt.Errorf("%w: timeout requires parallelProcessing", types.ErrIllegalArgument)
	}
	if c.ExecutorService != "" && !types.IsRef(c.ExecutorService) {
		return fmt.Errorf("%w: executorService must be a #bean reference, got %s", types.ErrIllegalArgument, c.ExecutorService)
	}
	if c.OnPrepare != "" && !types.IsRef(c.OnPrepare) {
		return fmt.Errorf("%w: onPrepare must be a #bean reference, got %s", types.ErrIllegalArgument, c.OnPrepare)
	}
	return nil
}

// RecipientList dispatches exchanges to the uris of a header.
type RecipientList struct {
	ctx       types.EngineContext
	header    string
	config    Configuration
	logger    types.Logger
	pool      types.Pool
	strategy  types.AggregationStrategy
	onPrepare types.Processor

	lock      sync.Mutex
	producers *cache.ProducerCache
}

var _ types.AsyncProcessor = (*RecipientList)(nil)

// New creates a recipient list reading uris from header. Bean references are
// resolved immediately so a bad configuration fails here.
func New(ctx types.EngineContext, header string, config Configuration) (*RecipientList, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Delimiter == "" {
		config.Delimiter = DefaultDelimiter
	}
	engineConfig := ctx.Config()
	r := &RecipientList{
		ctx:    ctx,
		header: header,
		config: config,
		logger: engineConfig.Logger,
		pool:   engineConfig.Pool,
	}
	var err error
	if config.ExecutorService != "" {
		if r.pool, err = types.LookupRef[types.Pool](engineConfig.Beans, config.ExecutorService); err != nil {
			return nil, fmt.Errorf("%w: executorService: %s", types.ErrIllegalArgument, err)
		}
	}
	if r.strategy, err = aggregate.Resolve(engineConfig, config.AggregationStrategy); err != nil {
		return nil, fmt.Errorf("%w: aggregationStrategy: %s", types.ErrIllegalArgument, err)
	}
	if config.OnPrepare != "" {
		if r.onPrepare, err = types.LookupRef[types.Processor](engineConfig.Beans, config.OnPrepare); err != nil {
			return nil, fmt.Errorf("%w: onPrepare: %s", types.ErrIllegalArgument, err)
		}
	}
	return r, nil
}

// Header returns the name of the header holding the recipients.
func (r *RecipientList) Header() string {
	return r.header
}

// Configuration returns the effective configuration.
func (r *RecipientList) Configuration() Configuration {
	return r.config
}

// Start creates the producer cache.
func (r *RecipientList) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.producers != nil {
		return nil
	}
	producers, err := cache.NewProducerCache(r.config.CacheSize, r.ctx.CreateProducer, r.logger)
	if err != nil {
		return err
	}
	r.producers = producers
	return nil
}

// Stop stops the cached producers.
func (r *RecipientList) Stop() error {
	r.lock.Lock()
	producers := r.producers
	r.producers = nil
	r.lock.Unlock()
	if producers != nil {
		producers.Stop()
	}
	return nil
}

// Recipients splits the header of exchange into trimmed, non empty uris.
func (r *RecipientList) Recipients(exchange *types.Exchange) []string {
	value := exchange.In.Headers.GetValue(r.header)
	if value == "" {
		return nil
	}
	var uris []string
	for _, item := range strings.Split(value, r.config.Delimiter) {
		if item = strings.TrimSpace(item); item != "" {
			uris = append(uris, item)
		}
	}
	return uris
}

type recipient struct {
	index    int
	uri      string
	producer types.Producer
	release  func()
}

type reply struct {
	index    int
	exchange *types.Exchange
}

// Process sends exchange to every recipient and merges the replies into it.
// A list without recipients leaves the exchange unchanged.
func (r *RecipientList) Process(exchange *types.Exchange) error {
	uris := r.Recipients(exchange)
	if len(uris) == 0 {
		return nil
	}
	recipients, err := r.resolve(uris)
	defer func() {
		for _, rc := range recipients {
			rc.release()
		}
	}()
	if err != nil {
		exchange.Err = err
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	var result *types.Exchange
	if r.config.ParallelProcessing {
		result, err = r.dispatchParallel(exchange, recipients)
	} else {
		result, err = r.dispatchSequential(exchange, recipients)
	}
	if err != nil {
		exchange.Err = err
		return err
	}
	if result != nil {
		if !aggregate.KeepsOriginal(r.strategy) {
			exchange.In = result.In
		}
		exchange.Err = result.Err
	}
	return exchange.Err
}

// ProcessAsync runs Process on the pool. When the pool rejects the task the
// exchange is processed on the calling goroutine.
func (r *RecipientList) ProcessAsync(exchange *types.Exchange, callback types.AsyncCallback) bool {
	err := r.pool.Submit(func() {
		_ = r.Process(exchange)
		callback(false)
	})
	if err == nil {
		return false
	}
	types.Debugf(r.logger, "recipient list runs exchange %s synchronously: %s", exchange.Id, err)
	_ = r.Process(exchange)
	callback(true)
	return true
}

func (r *RecipientList) resolve(uris []string) ([]recipient, error) {
	r.lock.Lock()
	producers := r.producers
	r.lock.Unlock()
	if producers == nil {
		return nil, fmt.Errorf("recipient list on header %s is not started", r.header)
	}
	recipients := make([]recipient, 0, len(uris))
	for i, uri := range uris {
		producer, release, err := producers.Acquire(uri)
		if err != nil {
			if r.config.IgnoreInvalidEndpoints {
				types.Warnf(r.logger, "recipient list ignores invalid endpoint %s: %s", uri, err)
				continue
			}
			return recipients, fmt.Errorf("recipient %s: %w", uri, err)
		}
		recipients = append(recipients, recipient{index: i, uri: uri, producer: producer, release: release})
	}
	return recipients, nil
}

func (r *RecipientList) send(exchange *types.Exchange, ctx context.Context, rc recipient) (sub *types.Exchange) {
	sub = exchange.Copy()
	sub.Context = ctx
	sub.Err = nil
	sub.SetProperty(PropertyRecipientEndpoint, rc.uri)
	sub.SetProperty(PropertyRecipientIndex, rc.index)
	defer func() {
		if caught := recover(); caught != nil {
			sub.Err = fmt.Errorf("recipient %s: %w", rc.uri, runtime.PanicError(caught))
		}
		if sub.Err != nil {
			types.Debugf(r.logger, "recipient %s failed for exchange %s: %s", rc.uri, exchange.Id, sub.Err)
		}
	}()
	if r.onPrepare != nil {
		if err := r.onPrepare.Process(sub); err != nil {
			sub.Err = fmt.Errorf("onPrepare for %s: %w", rc.uri, err)
			return sub
		}
	}
	if err := rc.producer.Process(sub); err != nil && sub.Err == nil {
		sub.Err = err
	}
	return sub
}

func (r *RecipientList) dispatchSequential(exchange *types.Exchange, recipients []recipient) (*types.Exchange, error) {
	var result *types.Exchange
	ctx := exchange.Ctx()
	for _, rc := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sub := r.send(exchange, ctx, rc)
		if sub.Err != nil && r.config.StopOnException {
			return nil, fmt.Errorf("recipient %s: %w", rc.uri, sub.Err)
		}
		result = r.strategy.Aggregate(result, sub)
	}
	return result, nil
}

func (r *RecipientList) dispatchParallel(exchange *types.Exchange, recipients []recipient) (*types.Exchange, error) {
	ctx, cancel := context.WithCancel(exchange.Ctx())
	defer cancel()
	var timeout <-chan time.Time
	if r.config.Timeout > 0 {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// buffered so late workers never block after the dispatch returned
	replies := make(chan reply, len(recipients))
	var (
		aggregateLock sync.Mutex
		result        *types.Exchange
		done          bool
	)
	aggregateNow := func(sub *types.Exchange) {
		aggregateLock.Lock()
		defer aggregateLock.Unlock()
		if !done {
			result = r.strategy.Aggregate(result, sub)
		}
	}
	inWorker := r.config.ParallelAggregate && r.config.Streaming

	for _, rc := range recipients {
		rc := rc
		task := func() {
			sub := r.send(exchange, ctx, rc)
			if inWorker && (sub.Err == nil || !r.config.StopOnException) {
				aggregateNow(sub)
			}
			replies <- reply{index: rc.index, exchange: sub}
		}
		if err := r.pool.Submit(task); err != nil {
			types.Debugf(r.logger, "recipient list runs %s on the calling goroutine: %s", rc.uri, err)
			task()
		}
	}

	ordered := make(map[int]*types.Exchange, len(recipients))
	received := 0
	for received < len(recipients) {
		select {
		case rp := <-replies:
			received++
			if rp.exchange.Err != nil && r.config.StopOnException {
				cancel()
				return nil, fmt.Errorf("recipient %s: %w", recipientUri(rp.exchange), rp.exchange.Err)
			}
			if inWorker {
				continue
			}
			if r.config.Streaming {
				aggregateNow(rp.exchange)
			} else {
				ordered[rp.index] = rp.exchange
			}
		case <-timeout:
			types.Warnf(r.logger, "recipient list timed out after %s with %d of %d replies for exchange %s",
				r.config.Timeout, received, len(recipients), exchange.Id)
			cancel()
			received = len(recipients)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !r.config.Streaming {
		for _, rc := range recipients {
			if sub, ok := ordered[rc.index]; ok {
				aggregateNow(sub)
			}
		}
	}
	aggregateLock.Lock()
	defer aggregateLock.Unlock()
	done = true
	return result, nil
}

func recipientUri(exchange *types.Exchange) string {
	v, _ := exchange.GetProperty(PropertyRecipientEndpoint)
	s, _ := v.(string)
	return s
}
