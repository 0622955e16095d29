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
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	connectors "github.com/rulego/rulego-connectors"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCommand(v *viper.Viper, load func() (Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the routes and serve metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, config, nil)
		},
	}
	cmd.Flags().String("metrics-addr", "", "address of the /metrics endpoint")
	_ = v.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

// Run loads and starts the routes, then blocks until ctx is done. ready, when
// set, receives the metrics address once everything is started; it is empty
// when metrics are disabled.
func Run(ctx context.Context, config Config, ready func(metricsAddr string)) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e := connectors.New(config.EngineOptions(types.WithMetricsRegisterer(registry))...)
	defer e.Stop()
	logger := e.Config().Logger

	if err := connectors.LoadInto(e, config.Routes); err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}

	var metricsAddr string
	var server *http.Server
	if config.MetricsAddr != "" {
		listener, err := net.Listen("tcp", config.MetricsAddr)
		if err != nil {
			return err
		}
		server = &http.Server{Handler: MetricsHandler(registry), ReadHeaderTimeout: 30 * time.Second}
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				types.Errorf(logger, "metrics server: %v", err)
			}
		}()
		metricsAddr = listener.Addr().String()
		types.Infof(logger, "metrics listening on %s", metricsAddr)
	}
	types.Infof(logger, "router started with %d routes", len(e.Routes()))
	if ready != nil {
		ready(metricsAddr)
	}

	<-ctx.Done()
	types.Infof(logger, "router stopping")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			types.Warnf(logger, "metrics server shutdown: %v", err)
		}
	}
	return nil
}

// MetricsHandler serves the collectors of registry at /metrics.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}
