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

package engine

import (
	"context"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/cache"
)

// ProducerTemplate sends exchanges to endpoints from application code.
// Producers are cached by uri.
type ProducerTemplate struct {
	engine    *Engine
	producers *cache.ProducerCache
}

// NewProducerTemplate creates a template with a producer cache of cacheSize,
// the default size when 0.
func NewProducerTemplate(engine *Engine, cacheSize int) *ProducerTemplate {
	producers, err := cache.NewProducerCache(cacheSize, engine.CreateProducer, engine.config.Logger)
	if err != nil {
		// only a non positive size makes lru fail, which NewProducerCache handles
		panic(err)
	}
	return &ProducerTemplate{engine: engine, producers: producers}
}

// Send processes exchange with the producer for uri. The returned error is
// the processing error or the error recorded on the exchange.
func (t *ProducerTemplate) Send(uri string, exchange *types.Exchange) error {
	producer, release, err := t.producers.Acquire(uri)
	if err != nil {
		return err
	}
	defer release()
	if err := producer.Process(exchange); err != nil {
		if exchange.Err == nil {
			exchange.Err = err
		}
		return err
	}
	return exchange.Err
}

// SendBody sends a text body and returns the completed exchange.
func (t *ProducerTemplate) SendBody(uri string, body string) (*types.Exchange, error) {
	return t.SendBodyAndHeaders(uri, body, nil)
}

// SendBodyAndHeaders sends a text body with headers.
func (t *ProducerTemplate) SendBodyAndHeaders(uri string, body string, headers map[string]string) (*types.Exchange, error) {
	return t.SendContext(context.Background(), uri, types.NewMessage("", types.TEXT, types.BuildHeaders(headers), body))
}

// SendContext sends msg within ctx.
func (t *ProducerTemplate) SendContext(ctx context.Context, uri string, msg types.Message) (*types.Exchange, error) {
	exchange := types.NewExchange(ctx, msg)
	err := t.Send(uri, exchange)
	return exchange, err
}

// RequestBody sends body and returns the reply body.
func (t *ProducerTemplate) RequestBody(uri string, body string) (string, error) {
	exchange, err := t.SendBody(uri, body)
	if err != nil {
		return "", err
	}
	return exchange.In.Body, nil
}

// Stop stops the cached producers.
func (t *ProducerTemplate) Stop() {
	t.producers.Stop()
}
