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

// Package js runs JavaScript predicates on pooled goja virtual machines.
//
// Every VM evaluates the script once, so functions it declares can then be
// called with Execute. Udf entries of the engine config are installed in
// each VM: string values are compiled as JavaScript, other values are
// exposed as Go functions.
package js

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rulego/rulego-connectors/api/types"
)

const (
	// GlobalKey exposes the global properties as `global.xx`.
	GlobalKey = "global"
)

// ErrExecutionTimeout is returned when a script exceeds ScriptMaxExecutionTime.
var ErrExecutionTimeout = errors.New("js execution timeout")

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vmPool   sync.Pool
	config   types.Config
	program  *goja.Program
	udfCache map[string]*goja.Program
}

// NewGojaJsEngine compiles script and prepares the VM pool.
func NewGojaJsEngine(config types.Config, script string) (*GojaJsEngine, error) {
	program, err := goja.Compile("", script, true)
	if err != nil {
		return nil, err
	}
	engine := &GojaJsEngine{
		config:   config,
		program:  program,
		udfCache: make(map[string]*goja.Program),
	}
	for name, v := range config.Udf {
		if src, ok := v.(string); ok {
			p, err := goja.Compile(name, src, true)
			if err != nil {
				return nil, fmt.Errorf("compile udf %s: %w", name, err)
			}
			engine.udfCache[name] = p
		}
	}
	engine.vmPool = sync.Pool{
		New: func() interface{} {
			return engine.newVm()
		},
	}
	return engine, nil
}

func (g *GojaJsEngine) newVm() *goja.Runtime {
	vm := goja.New()
	if len(g.config.Properties) != 0 {
		if err := vm.Set(GlobalKey, g.config.Properties.Values()); err != nil {
			types.Warnf(g.config.Logger, "set global properties error: %s", err)
		}
	}
	for name, v := range g.config.Udf {
		var err error
		if p, ok := g.udfCache[name]; ok {
			_, err = vm.RunProgram(p)
		} else {
			err = vm.Set(name, v)
		}
		if err != nil {
			types.Warnf(g.config.Logger, "install udf %s error: %s", name, err)
		}
	}
	timer := g.startTimeout(vm)
	_, err := vm.RunProgram(g.program)
	g.stopTimeout(vm, timer)
	if err != nil {
		types.Errorf(g.config.Logger, "js vm error: %s", err)
	}
	return vm
}

// Execute calls functionName with the given arguments and exports the
// result.
func (g *GojaJsEngine) Execute(functionName string, argumentList ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)

	f, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, errors.New(functionName + " is not a function")
	}
	params := make([]goja.Value, len(argumentList))
	for i, v := range argumentList {
		params[i] = vm.ToValue(v)
	}

	timer := g.startTimeout(vm)
	res, err := f(goja.Undefined(), params...)
	g.stopTimeout(vm, timer)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, ErrExecutionTimeout
		}
		return nil, err
	}
	return res.Export(), nil
}

func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.ScriptMaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.ScriptMaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

// stopTimeout also clears a pending interrupt so the pooled VM stays usable.
func (g *GojaJsEngine) stopTimeout(vm *goja.Runtime, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
		vm.ClearInterrupt()
	}
}
