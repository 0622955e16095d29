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

// Package predicate compiles filter expressions into types.Predicate.
//
// Languages:
//   - expr (default): expr-lang expression evaluated to bool
//   - js: JavaScript expression or function body
//   - header: `name`, `name==value` or `name!=value`
//   - constant: `true` or `false`
//   - bean: `#name` reference to a registered types.Predicate
//
// Expressions see the variables id, ts, type, dataType, body (alias data),
// msg (the body decoded as json when possible) and headers (alias metadata).
package predicate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/json"
)

const (
	LanguageExpr     = "expr"
	LanguageJs       = "js"
	LanguageHeader   = "header"
	LanguageConstant = "constant"
	LanguageBean     = "bean"
)

// Environment variable names.
const (
	VarId       = "id"
	VarTs       = "ts"
	VarType     = "type"
	VarDataType = "dataType"
	VarBody     = "body"
	VarData     = "data"
	VarMsg      = "msg"
	VarHeaders  = "headers"
	VarMetadata = "metadata"
)

const envProperty = "predicate.env"

// ErrUnknownLanguage is returned for unregistered languages.
var ErrUnknownLanguage = errors.New("unknown expression language")

// Factory compiles expression for one language.
type Factory func(config types.Config, expression string) (types.Predicate, error)

// Registry maps language names to factories.
var Registry = NewRegistry()

type LanguageRegistry struct {
	lock      sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *LanguageRegistry {
	r := &LanguageRegistry{factories: make(map[string]Factory)}
	r.Register(LanguageExpr, NewExprPredicate)
	r.Register(LanguageJs, NewJsPredicate)
	r.Register(LanguageHeader, NewHeaderPredicate)
	r.Register(LanguageConstant, NewConstantPredicate)
	r.Register(LanguageBean, newBeanPredicate)
	return r
}

// Register adds or replaces a language.
func (r *LanguageRegistry) Register(language string, factory Factory) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.factories[strings.ToLower(language)] = factory
}

// New compiles expression with language, expr when language is empty.
func (r *LanguageRegistry) New(config types.Config, language string, expression string) (types.Predicate, error) {
	if language == "" {
		language = LanguageExpr
	}
	r.lock.RLock()
	factory, ok := r.factories[strings.ToLower(language)]
	r.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}
	p, err := factory(config, expression)
	if err != nil {
		return nil, fmt.Errorf("compile %s predicate %q: %w", language, expression, err)
	}
	return p, nil
}

// New compiles expression with the default registry.
func New(config types.Config, language string, expression string) (types.Predicate, error) {
	return Registry.New(config, language, expression)
}

// Env returns the variables an expression is evaluated against: the ones
// bound by BindEnv, or a fresh environment.
func Env(exchange *types.Exchange) map[string]interface{} {
	if v, ok := exchange.GetProperty(envProperty); ok {
		if env, ok := v.(map[string]interface{}); ok {
			return env
		}
	}
	return newEnv(exchange)
}

// BindEnv builds the environment of exchange once and shares it with every
// predicate evaluated until unbind is called. The message must not change
// while bound. Binding an already bound exchange is a no-op.
func BindEnv(exchange *types.Exchange) (unbind func()) {
	if _, ok := exchange.GetProperty(envProperty); ok {
		return func() {}
	}
	exchange.SetProperty(envProperty, newEnv(exchange))
	return func() { exchange.RemoveProperty(envProperty) }
}

func newEnv(exchange *types.Exchange) map[string]interface{} {
	msg := exchange.In
	headers := make(map[string]interface{}, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return map[string]interface{}{
		VarId:       msg.Id,
		VarTs:       msg.Ts,
		VarType:     msg.Type,
		VarDataType: string(msg.DataType),
		VarBody:     msg.Body,
		VarData:     msg.Body,
		VarMsg:      json.ParseBody(msg.Body),
		VarHeaders:  headers,
		VarMetadata: headers,
	}
}

func newBeanPredicate(config types.Config, expression string) (types.Predicate, error) {
	return types.LookupRef[types.Predicate](config.Beans, expression)
}
