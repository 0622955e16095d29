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

package predicate

import (
	"context"
	"errors"
	"testing"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExchange(body string, headers map[string]string) *types.Exchange {
	return types.NewExchange(context.Background(), types.NewMessage("ORDER", types.JSON, types.BuildHeaders(headers), body))
}

func TestExprPredicate(t *testing.T) {
	config := types.NewConfig()
	p, err := New(config, "", `msg.amount > 100 && headers.region == "eu"`)
	require.Nil(t, err)

	ok, err := p.Matches(newExchange(`{"amount":150}`, map[string]string{"region": "eu"}))
	assert.Nil(t, err)
	assert.True(t, ok)

	ok, err = p.Matches(newExchange(`{"amount":50}`, map[string]string{"region": "eu"}))
	assert.Nil(t, err)
	assert.False(t, ok)

	p, err = New(config, LanguageExpr, `type == "ORDER" && body contains "x"`)
	require.Nil(t, err)
	ok, _ = p.Matches(newExchange("xyz", nil))
	assert.True(t, ok)

	_, err = New(config, LanguageExpr, `1 +`)
	assert.NotNil(t, err)
}

func TestEnvAliases(t *testing.T) {
	p, err := New(types.NewConfig(), LanguageExpr, `data == body && metadata.region == "eu"`)
	require.Nil(t, err)
	ok, err := p.Matches(newExchange(`{"amount":1}`, map[string]string{"region": "eu"}))
	assert.Nil(t, err)
	assert.True(t, ok)
}

func TestBindEnv(t *testing.T) {
	exchange := newExchange(`{"amount":1}`, nil)
	unbind := BindEnv(exchange)
	env := Env(exchange)
	env["marker"] = true
	// every evaluation shares the bound environment
	assert.Equal(t, true, Env(exchange)["marker"])
	BindEnv(exchange)()
	assert.Equal(t, true, Env(exchange)["marker"])

	unbind()
	_, ok := Env(exchange)["marker"]
	assert.False(t, ok)
	_, ok = exchange.GetProperty(envProperty)
	assert.False(t, ok)
}

func TestJsPredicate(t *testing.T) {
	config := types.NewConfig()
	p, err := New(config, LanguageJs, `msg.amount > 100`)
	require.Nil(t, err)
	ok, err := p.Matches(newExchange(`{"amount":150}`, nil))
	assert.Nil(t, err)
	assert.True(t, ok)

	p, err = New(config, "JS", `if (headers.vip === "true") { return true } return msg.amount > 1000`)
	require.Nil(t, err)
	ok, err = p.Matches(newExchange(`{"amount":10}`, map[string]string{"vip": "true"}))
	assert.Nil(t, err)
	assert.True(t, ok)

	p, err = New(config, LanguageJs, `"not a bool"`)
	require.Nil(t, err)
	_, err = p.Matches(newExchange(`{}`, nil))
	assert.NotNil(t, err)
}

func TestHeaderPredicate(t *testing.T) {
	config := types.NewConfig()
	ex := newExchange("", map[string]string{"kind": "a"})

	p, _ := New(config, LanguageHeader, "kind == a")
	ok, _ := p.Matches(ex)
	assert.True(t, ok)

	p, _ = New(config, LanguageHeader, "kind!=a")
	ok, _ = p.Matches(ex)
	assert.False(t, ok)

	p, _ = New(config, LanguageHeader, "missing")
	ok, _ = p.Matches(ex)
	assert.False(t, ok)

	_, err := New(config, LanguageHeader, " ")
	assert.NotNil(t, err)
}

func TestConstantAndBeanPredicate(t *testing.T) {
	config := types.NewConfig(types.WithBean("always", True))
	p, err := New(config, LanguageConstant, "false")
	require.Nil(t, err)
	ok, _ := p.Matches(newExchange("", nil))
	assert.False(t, ok)

	p, err = New(config, LanguageBean, "#always")
	require.Nil(t, err)
	ok, _ = p.Matches(newExchange("", nil))
	assert.True(t, ok)

	_, err = New(config, LanguageBean, "#nope")
	assert.True(t, errors.Is(err, types.ErrBeanNotFound))

	_, err = New(config, "simple", "${body}")
	assert.True(t, errors.Is(err, ErrUnknownLanguage))
}
