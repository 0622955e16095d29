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


// Package connectors registers the builtin components into the default
// component registry and loads route files into an engine.
//
// Create an engine and add a route:
//
//	e := connectors.New()
//	_, err := e.From("rest:/orders?server=:9090").To("dynamic-router:orders").End()
//	err = e.Start()
//
// Load every route file of a folder:
//
//	e, err := connectors.Load("./routes")
package connectors

import (
	"fmt"
	"os"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/db"
	"github.com/rulego/rulego-connectors/components/direct"
	"github.com/rulego/rulego-connectors/components/dynamicrouter"
	"github.com/rulego/rulego-connectors/components/httpcall"
	"github.com/rulego/rulego-connectors/components/log"
	"github.com/rulego/rulego-connectors/components/mock"
	"github.com/rulego/rulego-connectors/components/mqtt"
	"github.com/rulego/rulego-connectors/components/recipientlist"
	"github.com/rulego/rulego-connectors/components/rest"
	"github.com/rulego/rulego-connectors/components/servicenow"
	"github.com/rulego/rulego-connectors/components/watsonx"
	"github.com/rulego/rulego-connectors/components/websocket"
	"github.com/rulego/rulego-connectors/engine"
	"github.com/rulego/rulego-connectors/utils/fs"
)

func init() {
	if err := Register(engine.Registry); err != nil {
		panic(err)
	}
}

// Builtins returns a prototype of every builtin component.
func Builtins() []types.Component {
	return []types.Component{
		&direct.Component{},
		&mock.Component{},
		&log.Component{},
		&recipientlist.Component{},
		&dynamicrouter.Component{},
		&dynamicrouter.ControlComponent{},
		&servicenow.Component{},
		&watsonx.Component{},
		&rest.Component{},
		&websocket.Component{},
		httpcall.New(httpcall.TypeHttp),
		httpcall.New(httpcall.TypeHttps),
		&mqtt.Component{},
		&db.Component{},
	}
}

// Register adds the builtin components to registry.
func Register(registry types.ComponentRegistry) error {
	for _, c := range Builtins() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// New creates an engine backed by the default registry.
func New(opts ...engine.Option) *engine.Engine {
	return engine.New(opts...)
}

// Load creates an engine and loads the route files found under folder and
// its sub folders, in path order. The engine is not started.
func Load(folder string, opts ...engine.Option) (*engine.Engine, error) {
	e := New(opts...)
	if err := LoadInto(e, folder); err != nil {
		e.Stop()
		return nil, err
	}
	return e, nil
}

// LoadInto loads the route files found under folder into e. folder may also
// name a single route file.
func LoadInto(e *engine.Engine, folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	paths := []string{folder}
	if info.IsDir() {
		if paths, err = fs.GetFilePaths(folder, fs.RoutePattern); err != nil {
			return err
		}
	}
	for _, path := range paths {
		data := fs.LoadFile(path)
		if data == nil {
			return fmt.Errorf("%w: cannot read %s", types.ErrIllegalArgument, path)
		}
		def, err := engine.ParseRoutes(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := e.LoadRoutes(def); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		types.Infof(e.Config().Logger, "loaded %d routes from %s", len(def.Routes), path)
	}
	return nil
}
