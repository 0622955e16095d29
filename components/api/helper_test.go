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

package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calculator struct {
	calls []string
}

func method(name string, priority int, args ...string) *ApiMethod {
	m := &ApiMethod{Name: name, Priority: priority}
	for _, a := range args {
		kind := cast.KindInt
		if a == "label" {
			kind = cast.KindString
		}
		m.Args = append(m.Args, ApiMethodArg{Name: a, Type: kind})
	}
	m.Invoke = func(ctx context.Context, proxy any, args map[string]any) (any, error) {
		calc := proxy.(*calculator)
		calc.calls = append(calc.calls, m.String())
		sum := 0
		for _, a := range m.Args {
			if v, ok := args[a.Name].(int); ok {
				sum += v
			}
		}
		return sum, nil
	}
	return m
}

func newCalculatorHelper(t *testing.T) (*ApiMethodHelper, map[string]*ApiMethod) {
	methods := map[string]*ApiMethod{
		"ab":    method("add", 0, "a", "b"),
		"abc":   method("add", 0, "a", "b", "c"),
		"an":    method("scale", 0, "a", "n"),
		"neg":   method("negate", 0, "a"),
		"negHi": method("negate", 5, "b"),
	}
	h, err := NewApiMethodHelper("calc", []*ApiMethod{
		methods["ab"], methods["abc"], methods["an"], methods["neg"], methods["negHi"],
	}, "n")
	require.Nil(t, err)
	return h, methods
}

func TestOverloadWithMostArgumentsWins(t *testing.T) {
	h, m := newCalculatorHelper(t)
	candidates := h.GetCandidateMethods("add")
	assert.Equal(t, []*ApiMethod{m["ab"], m["abc"]}, candidates)

	assert.Equal(t, []*ApiMethod{m["abc"]}, h.FilterMethods(candidates, SuperSet, "a", "b", "c"))
	assert.Equal(t, []*ApiMethod{m["ab"]}, h.FilterMethods(candidates, SuperSet, "a", "b"))
	// extra arguments fall back to the overloads ignoring them
	assert.Equal(t, []*ApiMethod{m["ab"], m["abc"]}, h.FilterMethods(candidates, SuperSet, "a", "b", "c", "x"))
	assert.Equal(t, []*ApiMethod{m["ab"]}, h.FilterMethods(candidates, SuperSet, "a", "b", "x"))
	assert.Empty(t, h.FilterMethods(candidates, SuperSet, "a"))
}

func TestFilterMethodsMatchTypes(t *testing.T) {
	h, m := newCalculatorHelper(t)
	all := h.Methods()
	assert.Equal(t, []*ApiMethod{m["ab"]}, h.FilterMethods(all, Exact, "b", "a"))
	assert.Equal(t, []*ApiMethod{m["ab"], m["abc"]}, h.FilterMethods(all, Subset, "a", "b"))
	assert.Equal(t, []*ApiMethod{m["abc"]}, h.FilterMethods(all, Subset, "c"))
	// n is nullable
	assert.Equal(t, []*ApiMethod{m["an"]}, h.FilterMethods(h.GetCandidateMethods("scale"), SuperSet, "a"))
	assert.Equal(t, []*ApiMethod{m["abc"]}, h.GetCandidateMethods("add", "c"))
	assert.Empty(t, h.GetCandidateMethods("missing"))
	assert.Equal(t, "SUPER_SET", SuperSet.String())
}

func TestMissingProperties(t *testing.T) {
	h, _ := newCalculatorHelper(t)
	assert.Equal(t, []string{"b", "c"}, h.GetMissingProperties("add", "a"))
	assert.Equal(t, []string{"a", "b", "c", "n"}, h.AllArguments())
	kind, ok := h.GetType("a")
	assert.True(t, ok)
	assert.Equal(t, cast.KindInt, kind)
	assert.True(t, h.IsNullable("n"))
	assert.False(t, h.IsNullable("a"))
}

func TestHighestPriorityMethod(t *testing.T) {
	h, m := newCalculatorHelper(t)
	assert.Equal(t, m["negHi"], h.GetHighestPriorityMethod(h.GetCandidateMethods("negate")))
	assert.Equal(t, m["abc"], h.GetHighestPriorityMethod([]*ApiMethod{m["ab"], m["abc"]}))
	assert.Nil(t, h.GetHighestPriorityMethod(nil))
}

func TestInvokeMethodConvertsArguments(t *testing.T) {
	h, m := newCalculatorHelper(t)
	calc := &calculator{}
	result, err := h.InvokeMethod(context.Background(), calc, m["abc"], map[string]any{"a": "1", "b": 2, "c": "3", "x": "ignored"})
	require.Nil(t, err)
	assert.Equal(t, 6, result)
	assert.Equal(t, []string{"calc/add(a, b, c)"}, calc.calls)

	_, err = h.InvokeMethod(context.Background(), calc, m["ab"], map[string]any{"a": "one", "b": 2})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))
}

func TestInvokeMethodWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	failing := &ApiMethod{Name: "fail", Invoke: func(context.Context, any, map[string]any) (any, error) {
		return nil, boom
	}}
	panicking := &ApiMethod{Name: "panic", Invoke: func(context.Context, any, map[string]any) (any, error) {
		panic("bad proxy")
	}}
	h, err := NewApiMethodHelper("x", []*ApiMethod{failing, panicking})
	require.Nil(t, err)

	_, err = h.InvokeMethod(context.Background(), nil, failing, nil)
	var runtimeErr *RuntimeError
	require.True(t, errors.As(err, &runtimeErr))
	assert.Equal(t, "x/fail()", runtimeErr.Method)
	assert.True(t, errors.Is(err, boom))

	_, err = h.InvokeMethod(context.Background(), nil, panicking, nil)
	require.True(t, errors.As(err, &runtimeErr))
	assert.Contains(t, err.Error(), "bad proxy")
}

func TestHelperRejectsInvalidDeclarations(t *testing.T) {
	_, err := NewApiMethodHelper("x", []*ApiMethod{{Name: "noop"}})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))

	noop := func(context.Context, any, map[string]any) (any, error) { return nil, nil }
	_, err = NewApiMethodHelper("x", []*ApiMethod{
		{Name: "a", Args: []ApiMethodArg{{Name: "id", Type: cast.KindInt}}, Invoke: noop},
		{Name: "b", Args: []ApiMethodArg{{Name: "id", Type: cast.KindString}}, Invoke: noop},
	})
	assert.True(t, errors.Is(err, types.ErrIllegalArgument))
	assert.Panics(t, func() { MustNewApiMethodHelper("x", []*ApiMethod{{Name: "noop"}}) })
}

func TestMissingPropertiesError(t *testing.T) {
	err := &MissingPropertiesError{Api: "calc", Method: "add", Missing: []string{"c", "b"}}
	assert.Equal(t, fmt.Sprintf("missing properties for calc/add, need one or more from %v", []string{"b", "c"}), err.Error())
}
