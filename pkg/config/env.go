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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded by LoadEnvFiles when no names are given.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads dotenv files in order. Missing files are skipped and
// variables already set are never overwritten.
func LoadEnvFiles(names ...string) error {
	if len(names) == 0 {
		names = DefaultEnvFiles
	}
	for _, name := range names {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// envRef matches ${VAR}, ${VAR:-default} and $VAR.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandString replaces environment references in s.
func ExpandString(s string, getenv func(string) string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		m := envRef.FindStringSubmatch(match)
		if m[4] != "" {
			return getenv(m[4])
		}
		if v := getenv(m[1]); v != "" || m[2] == "" {
			return v
		}
		return m[3]
	})
}

// expandTree expands every string leaf of a decoded document.
func expandTree(v any, getenv func(string) string) any {
	switch val := v.(type) {
	case string:
		return ExpandString(val, getenv)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandTree(item, getenv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandTree(item, getenv)
		}
		return out
	default:
		return v
	}
}

// ApplyEnv overlays deployment variables on cfg. It runs after decoding
// and before SetDefaults, so only variables that are set win.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst **bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b := strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
			*dst = &b
		}
	}
	seconds := func(key string, dst *time.Duration) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(getenv(key)), 64); err == nil && f > 0 {
			*dst = time.Duration(f * float64(time.Second))
		}
	}

	str("HOST", &cfg.Server.Host)
	if p, err := strconv.Atoi(strings.TrimSpace(getenv("PORT"))); err == nil && p > 0 {
		cfg.Server.Port = p
	}

	str("AGENT_NAME", &cfg.Agent.Name)
	str("AGENT_VERSION", &cfg.Agent.Version)
	str("AGENT_ORG", &cfg.Agent.Organization)
	str("AGENT_ORG_URL", &cfg.Agent.OrganizationURL)
	str("AGENT_ICON_URL", &cfg.Agent.IconURL)
	str("AGENT_DOCS_URL", &cfg.Agent.DocsURL)
	str("AGENT_REGISTRY_PATH", &cfg.Registry.Path)
	seconds("AGENT_HEARTBEAT_INTERVAL", &cfg.Task.HeartbeatInterval)
	seconds("AGENT_CHUNK_TIMEOUT", &cfg.Resilience.ChunkTimeout)

	boolean("A2A_ENABLE_RETRY", &cfg.Resilience.EnableRetry)
	boolean("A2A_ENABLE_TIMEOUT", &cfg.Resilience.EnableTimeout)
	boolean("A2A_ENABLE_CIRCUIT_BREAKER", &cfg.Resilience.EnableCircuitBreaker)
	if n, err := strconv.Atoi(strings.TrimSpace(getenv("A2A_MAX_RETRIES"))); err == nil && n > 0 {
		cfg.Resilience.MaxRetries = n
	}
	var raise *bool
	boolean("A2A_RAISE_ERRORS", &raise)
	if raise != nil {
		cfg.Resilience.RaiseErrors = *raise
	}

	str("LOG_LEVEL", &cfg.Logger.Level)
	str("LOG_FORMAT", &cfg.Logger.Format)
	str("LOG_FILE", &cfg.Logger.File)
}
