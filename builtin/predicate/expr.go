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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/rulego-connectors/api/types"
)

// ExprPredicate evaluates an expr-lang boolean expression.
type ExprPredicate struct {
	Expression string
	program    *vm.Program
}

// NewExprPredicate compiles expression. Unknown variables evaluate to nil.
func NewExprPredicate(_ types.Config, expression string) (types.Predicate, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &ExprPredicate{Expression: expression, program: program}, nil
}

func (p *ExprPredicate) Matches(exchange *types.Exchange) (bool, error) {
	out, err := vm.Run(p.program, Env(exchange))
	if err != nil {
		return false, err
	}
	result, _ := out.(bool)
	return result, nil
}

func (p *ExprPredicate) String() string {
	return p.Expression
}
