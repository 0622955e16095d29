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
	"fmt"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
)

// Registry is the default component registry. The root package registers the
// builtin components into it.
var Registry = new(ComponentRegistry)

var _ types.ComponentRegistry = (*ComponentRegistry)(nil)

// ComponentRegistry keeps component prototypes by scheme.
type ComponentRegistry struct {
	components map[string]types.Component
	sync.RWMutex
}

// Register adds component. A scheme can only be registered once.
func (r *ComponentRegistry) Register(component types.Component) error {
	r.Lock()
	defer r.Unlock()
	if r.components == nil {
		r.components = make(map[string]types.Component)
	}
	if _, ok := r.components[component.Type()]; ok {
		return fmt.Errorf("%w: scheme=%s", types.ErrComponentExists, component.Type())
	}
	r.components[component.Type()] = component
	return nil
}

// Unregister removes a scheme.
func (r *ComponentRegistry) Unregister(scheme string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.components[scheme]; !ok {
		return fmt.Errorf("%w: scheme=%s", types.ErrComponentNotFound, scheme)
	}
	delete(r.components, scheme)
	return nil
}

// NewComponent returns a new instance of the component registered for scheme.
func (r *ComponentRegistry) NewComponent(scheme string) (types.Component, error) {
	r.RLock()
	defer r.RUnlock()
	if component, ok := r.components[scheme]; ok {
		return component.New(), nil
	}
	return nil, fmt.Errorf("%w: scheme=%s", types.ErrComponentNotFound, scheme)
}

// GetComponents returns a copy of the registered prototypes.
func (r *ComponentRegistry) GetComponents() map[string]types.Component {
	r.RLock()
	defer r.RUnlock()
	components := make(map[string]types.Component, len(r.components))
	for k, v := range r.components {
		components[k] = v
	}
	return components
}
