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
	"fmt"
	"regexp"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/js"
)

const jsFuncName = "Matches"

// a body with a return statement is used as is, otherwise it is an expression
var returnRegex = regexp.MustCompile(`\breturn\b`)

// JsPredicate evaluates JavaScript on pooled goja VMs. The script sees
// msg, headers, type and body.
type JsPredicate struct {
	Expression string
	engine     *js.GojaJsEngine
}

func NewJsPredicate(config types.Config, expression string) (types.Predicate, error) {
	body := expression
	if !returnRegex.MatchString(expression) {
		body = "return (" + expression + ");"
	}
	script := fmt.Sprintf("function %s(msg, headers, type, body) { %s }", jsFuncName, body)
	engine, err := js.NewGojaJsEngine(config, script)
	if err != nil {
		return nil, err
	}
	return &JsPredicate{Expression: expression, engine: engine}, nil
}

func (p *JsPredicate) Matches(exchange *types.Exchange) (bool, error) {
	env := Env(exchange)
	out, err := p.engine.Execute(jsFuncName, env[VarMsg], env[VarHeaders], env[VarType], env[VarBody])
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("js predicate returned %T, want bool", out)
	}
	return result, nil
}

func (p *JsPredicate) String() string {
	return p.Expression
}
