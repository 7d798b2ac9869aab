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
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/a2akit/examples/echo"
	"github.com/kadirpekel/a2akit/pkg/compliance"
	"github.com/kadirpekel/a2akit/pkg/config"
)

// cardOptions converts the agent section. Off-platform cards without a
// URL point at the configured local port.
func cardOptions(cfg *config.Config, getenv func(string) string) compliance.CardOptions {
	opts := cfg.Agent.CardOptions()
	if opts.URL == "" && getenv("HU_APP_URL") == "" {
		opts.URL = fmt.Sprintf("http://localhost:%d/", cfg.Server.Port)
	}
	return opts
}

// loadCardConfig loads the config the way serve does, without watching.
func (cli *CLI) loadCardConfig(agent string) (*config.Config, error) {
	e := echo.New()
	name := "LLM Agent"
	if agent == agentEcho {
		name = e.Name()
	}
	cfg, loader, err := cli.loadConfig(context.Background(), name)
	if err != nil {
		return nil, err
	}
	if loader != nil {
		_ = loader.Close()
	}
	if agent == agentEcho {
		e.Configure(&cfg.Agent)
	}
	return cfg, nil
}

// CardCmd prints the agent card that serve would publish.
type CardCmd struct {
	Agent   string `help:"Agent kind (echo, llm)." default:"llm" enum:"echo,llm"`
	Compact bool   `help:"Compact JSON output (no indentation)."`
}

func (c *CardCmd) Run(cli *CLI) error {
	cfg, err := cli.loadCardConfig(c.Agent)
	if err != nil {
		return err
	}
	card := compliance.NewCard(cardOptions(cfg, os.Getenv))

	enc := json.NewEncoder(os.Stdout)
	if !c.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(card); err != nil {
		return fmt.Errorf("failed to encode card: %w", err)
	}
	return nil
}
