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
	"fmt"
	"io"
	"strings"

	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/server"
)

const (
	greenColor = "\033[38;2;16;185;129m"
	resetColor = "\033[0m"
)

// printBanner prints the endpoints of a started server.
func printBanner(w io.Writer, cfg *config.Config, cardURL, metricsPath string) {
	base := strings.TrimSuffix(cardURL, "/")
	if base == "" {
		base = "http://" + cfg.Server.Addr()
	}

	fmt.Fprintf(w, "\n%s%s is ready%s\n", greenColor, cfg.Agent.Name, resetColor)
	fmt.Fprintf(w, "   JSON-RPC:    %s/\n", base)
	fmt.Fprintf(w, "   Agent Card:  %s%s\n", base, server.AgentCardPath)
	fmt.Fprintf(w, "   Health:      %s%s\n", base, server.HealthPath)
	if cfg.Server.Debug {
		fmt.Fprintf(w, "   Debug:       %s/debug/tasks/{id}\n", base)
	}
	if metricsPath != "" {
		fmt.Fprintf(w, "   Metrics:     %s%s\n", base, metricsPath)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Fprintf(w, "   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Task.Store == config.StoreSQL {
		fmt.Fprintf(w, "   Tasks:       %s (%s)\n", cfg.Database.Driver, cfg.Database.Database)
	} else {
		fmt.Fprintf(w, "   Tasks:       in-memory (not persisted)\n")
	}
	if cfg.Server.Auth.Enabled {
		fmt.Fprintf(w, "   Auth:        bearer JWT\n")
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		rules := make([]string, 0, len(rl.Limits))
		for _, r := range rl.Limits {
			rules = append(rules, fmt.Sprintf("%d/%s", r.Limit, r.Window))
		}
		fmt.Fprintf(w, "   Rate limit:  %s per caller\n", strings.Join(rules, ", "))
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")
}
