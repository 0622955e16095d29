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

package js

import (
	"strings"
	"testing"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	config := types.NewConfig()
	config.Properties.PutValue("limit", "10")
	config.RegisterUdf("double", func(v int) int { return v * 2 })
	config.RegisterUdf("isBig", "function isBig(v){ return v > 100 }")

	engine, err := NewGojaJsEngine(config, `function match(msg){ return double(msg.n) > Number(global.limit) && !isBig(msg.n) }`)
	require.Nil(t, err)

	out, err := engine.Execute("match", map[string]interface{}{"n": 6})
	assert.Nil(t, err)
	assert.Equal(t, true, out)

	out, err = engine.Execute("match", map[string]interface{}{"n": 2})
	assert.Nil(t, err)
	assert.Equal(t, false, out)

	_, err = engine.Execute("missing")
	assert.NotNil(t, err)
}

func TestCompileError(t *testing.T) {
	_, err := NewGojaJsEngine(types.NewConfig(), "function (")
	assert.NotNil(t, err)
}

func TestExecutionTimeout(t *testing.T) {
	config := types.NewConfig(types.WithScriptMaxExecutionTime(50 * time.Millisecond))
	engine, err := NewGojaJsEngine(config, `function spin(){ while(true){} }
function ok(){ return "ok" }`)
	require.Nil(t, err)

	_, err = engine.Execute("spin")
	assert.Equal(t, ErrExecutionTimeout, err)

	// the same pooled vm must still work after an interrupt
	out, err := engine.Execute("ok")
	assert.Nil(t, err)
	assert.True(t, strings.EqualFold("ok", out.(string)))
}
