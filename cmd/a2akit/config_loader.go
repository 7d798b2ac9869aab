// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/config/provider"
)

// DefaultConfigFile is loaded when --config is not given and the file
// exists in the working directory.
const DefaultConfigFile = "a2akit.yaml"

// withDefaultEnv returns a getenv that falls back to defaults for unset
// variables.
func withDefaultEnv(getenv func(string) string, defaults map[string]string) func(string) string {
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return defaults[key]
	}
}

// loadConfig resolves the configuration. An explicit --config goes
// through the selected provider; otherwise a2akit.yaml in the working
// directory is used when present, and the environment alone when not.
// agentName is only used in environment mode when AGENT_NAME is unset.
// The returned loader is nil in environment mode.
func (cli *CLI) loadConfig(ctx context.Context, agentName string, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	path := cli.Config
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to stat %s: %w", DefaultConfigFile, err)
		}
	}

	if path == "" {
		getenv := withDefaultEnv(os.Getenv, map[string]string{"AGENT_NAME": agentName})
		cfg, err := config.FromEnv(getenv)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
		slog.Debug("Using environment configuration", "agent", cfg.Agent.Name)
		return cfg, nil, nil
	}

	typ, err := provider.ParseType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.LoadConfig(ctx, provider.Options{
		Type:      typ,
		Path:      path,
		Endpoints: cli.ConfigEndpoints,
		Token:     cli.ConfigToken,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "source", typ, "path", path)
	return cfg, loader, nil
}
