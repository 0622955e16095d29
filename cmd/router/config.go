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
	"strings"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/engine"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding the config file,
// for example ROUTER_METRICS_ADDR for metrics_addr.
const EnvPrefix = "ROUTER"

// Config of the router process.
type Config struct {
	// Routes is a route file or a folder of route files.
	Routes string `mapstructure:"routes"`
	// MetricsAddr serves /metrics. Empty disables it.
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Properties are global properties referenced as ${global.name}.
	Properties map[string]string `mapstructure:"properties"`
	// Components holds component level configuration by scheme.
	Components map[string]map[string]interface{} `mapstructure:"components"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("routes", "./routes")
	v.SetDefault("metrics_addr", ":9464")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("shutdown_timeout", "10s")
}

// LoadConfig reads configFile, when set, and the ROUTER_* environment.
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if config.Routes == "" {
		return Config{}, fmt.Errorf("%w: routes is required", types.ErrIllegalArgument)
	}
	return config, nil
}

// EngineOptions turns the config into engine options. opts are appended to
// the engine configuration options.
func (c Config) EngineOptions(opts ...types.Option) []engine.Option {
	logger := types.NewLevelLogger(types.DefaultLogger(), types.ParseLevel(c.LogLevel))
	properties := types.NewHeaders()
	for k, v := range c.Properties {
		properties.PutValue(k, v)
	}
	configOpts := append([]types.Option{types.WithLogger(logger), types.WithProperties(properties)}, opts...)
	options := []engine.Option{engine.WithConfig(types.NewConfig(configOpts...))}
	for scheme, configuration := range c.Components {
		options = append(options, engine.WithComponentConfiguration(scheme, configuration))
	}
	return options
}
