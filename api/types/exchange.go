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

package types

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Exchange is one in-flight message and the state attached to it while it
// travels through a route.
type Exchange struct {
	Id string
	// Context carries cancellation and deadlines of the caller.
	Context context.Context
	// In is the current message. Processors mutate it in place.
	In Message
	// Err is the failure recorded by the last processor, if any.
	Err error
	// FromEndpoint is the uri of the consumer that created the exchange.
	FromEndpoint string
	// FromRouteId is the id of the route that created the exchange.
	FromRouteId string

	lock       sync.RWMutex
	properties map[string]interface{}
}

// NewExchange wraps msg in a new exchange.
func NewExchange(ctx context.Context, msg Message) *Exchange {
	if ctx == nil {
		ctx = context.Background()
	}
	uuId, _ := uuid.NewV4()
	return &Exchange{
		Id:         uuId.String(),
		Context:    ctx,
		In:         msg,
		properties: make(map[string]interface{}),
	}
}

// NewExchangeWithBody is a shortcut for a text message exchange.
func NewExchangeWithBody(ctx context.Context, body string) *Exchange {
	return NewExchange(ctx, NewMessage("", TEXT, NewHeaders(), body))
}

// SetProperty sets an exchange scoped property.
func (e *Exchange) SetProperty(key string, value interface{}) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.properties == nil {
		e.properties = make(map[string]interface{})
	}
	e.properties[key] = value
}

// GetProperty returns an exchange scoped property.
func (e *Exchange) GetProperty(key string) (interface{}, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	v, ok := e.properties[key]
	return v, ok
}

// RemoveProperty deletes a property.
func (e *Exchange) RemoveProperty(key string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.properties, key)
}

// Copy returns a deep copy of the exchange with a new id. Properties are
// copied shallowly.
func (e *Exchange) Copy() *Exchange {
	uuId, _ := uuid.NewV4()
	e.lock.RLock()
	props := make(map[string]interface{}, len(e.properties))
	for k, v := range e.properties {
		props[k] = v
	}
	e.lock.RUnlock()
	return &Exchange{
		Id:           uuId.String(),
		Context:      e.Context,
		In:           e.In.Copy(),
		Err:          e.Err,
		FromEndpoint: e.FromEndpoint,
		FromRouteId:  e.FromRouteId,
		properties:   props,
	}
}

// Ctx never returns nil.
func (e *Exchange) Ctx() context.Context {
	if e.Context == nil {
		return context.Background()
	}
	return e.Context
}

// Failed reports whether an error is recorded.
func (e *Exchange) Failed() bool {
	return e.Err != nil
}
