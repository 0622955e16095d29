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


package main

import (
	"errors"
	"fmt"

	connectors "github.com/rulego/rulego-connectors"
	"github.com/spf13/cobra"
)

func newValidateCommand(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every route uri resolves to an endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := load()
			if err != nil {
				return err
			}
			count, err := Validate(config)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d routes ok\n", count)
			return nil
		},
	}
}

// Validate loads the routes without starting them and resolves every uri.
// It returns the number of routes.
func Validate(config Config) (int, error) {
	e := connectors.New(config.EngineOptions()...)
	defer e.Stop()
	if err := connectors.LoadInto(e, config.Routes); err != nil {
		return 0, err
	}
	var errs []error
	routes := e.Routes()
	for _, route := range routes {
		for _, uri := range route.Uris() {
			if _, err := e.GetEndpoint(uri); err != nil {
				errs = append(errs, fmt.Errorf("route %s: %w", route.Id, err))
			}
		}
	}
	return len(routes), errors.Join(errs...)
}
