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
	"fmt"
	"sort"

	"github.com/rulego/rulego-connectors/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string
	root := &cobra.Command{
		Use:          "router",
		Short:        "Run integration routes",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("routes", "", "route file or folder of route files")
	_ = v.BindPFlag("routes", root.PersistentFlags().Lookup("routes"))

	load := func() (Config, error) {
		return LoadConfig(v, configFile)
	}
	root.AddCommand(newRunCommand(v, load), newValidateCommand(load), newComponentsCommand())
	return root
}

func newComponentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List the registered component schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var schemes []string
			for scheme := range engine.Registry.GetComponents() {
				schemes = append(schemes, scheme)
			}
			sort.Strings(schemes)
			for _, scheme := range schemes {
				fmt.Fprintln(cmd.OutOrStdout(), scheme)
			}
			return nil
		},
	}
}
