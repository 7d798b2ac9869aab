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

package compliance

import (
	"os"
	"strconv"
	"strings"
)

// Deployment environments.
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// DefaultPort is used for the local agent URL when PORT is unset.
const DefaultPort = 8000

// Platform describes where the agent is deployed.
type Platform struct {
	IsHealthUniverse bool   `json:"is_healthuniverse"`
	AgentURL         string `json:"agent_url"`
	AgentID          string `json:"agent_id,omitempty"`
	Environment      string `json:"environment"`
}

// PlatformDetector reads deployment information from the environment.
type PlatformDetector struct {
	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// NewPlatformDetector returns a detector backed by the process environment.
func NewPlatformDetector() *PlatformDetector {
	return &PlatformDetector{Getenv: os.Getenv}
}

func (d *PlatformDetector) env(key string) string {
	if d == nil || d.Getenv == nil {
		return os.Getenv(key)
	}
	return d.Getenv(key)
}

func (d *PlatformDetector) envDefault(key, def string) string {
	if v := d.env(key); v != "" {
		return v
	}
	return def
}

// IsHealthUniverse reports whether HU_APP_URL is set.
func (d *PlatformDetector) IsHealthUniverse() bool {
	return d.env("HU_APP_URL") != ""
}

// AgentURL returns HU_APP_URL, or the localhost URL on PORT.
func (d *PlatformDetector) AgentURL() string {
	if u := d.env("HU_APP_URL"); u != "" {
		return u
	}
	return "http://localhost:" + d.port()
}

func (d *PlatformDetector) port() string {
	p := d.env("PORT")
	if _, err := strconv.Atoi(p); err != nil {
		return strconv.Itoa(DefaultPort)
	}
	return p
}

// Environment returns production or staging on HealthUniverse, development
// elsewhere.
func (d *PlatformDetector) Environment() string {
	hu := d.env("HU_APP_URL")
	switch {
	case hu == "":
		return EnvDevelopment
	case strings.Contains(hu, "staging") || strings.Contains(hu, "dev"):
		return EnvStaging
	default:
		return EnvProduction
	}
}

// Detect collects the platform information.
func (d *PlatformDetector) Detect() Platform {
	url := d.AgentURL()
	p := Platform{
		IsHealthUniverse: d.IsHealthUniverse(),
		AgentURL:         url,
		Environment:      d.Environment(),
	}
	if p.IsHealthUniverse {
		p.AgentID = ExtractAgentID(url)
	}
	return p
}

// ExtractAgentID returns the xxx-xxx-xxx agent id embedded in url, or "".
func ExtractAgentID(url string) string {
	return agentIDPattern.FindString(url)
}

// DeploymentConfig is the resolved deployment description.
type DeploymentConfig struct {
	Platform    string          `json:"platform"`
	Environment string          `json:"environment"`
	URL         string          `json:"url"`
	AgentID     string          `json:"agent_id,omitempty"`
	Host        string          `json:"host"`
	Port        int             `json:"port"`
	APIKeys     map[string]bool `json:"api_keys"`
	Features    Features        `json:"features"`
	Resources   Resources       `json:"resources"`
}

type Features struct {
	SSL          bool `json:"ssl"`
	CustomDomain bool `json:"custom_domain"`
	DebugMode    bool `json:"debug_mode"`
}

type Resources struct {
	MemoryLimit    string `json:"memory_limit"`
	CPULimit       string `json:"cpu_limit"`
	RequestTimeout int    `json:"timeout"`
}

// DeploymentConfig resolves host, port, keys, features and resource limits.
func (d *PlatformDetector) DeploymentConfig() DeploymentConfig {
	url := d.AgentURL()
	agentID := ExtractAgentID(url)

	platform := "local"
	if d.IsHealthUniverse() {
		platform = "healthuniverse"
	}

	port, _ := strconv.Atoi(d.port())
	timeout, err := strconv.Atoi(d.env("REQUEST_TIMEOUT"))
	if err != nil {
		timeout = 300
	}

	return DeploymentConfig{
		Platform:    platform,
		Environment: d.Environment(),
		URL:         url,
		AgentID:     agentID,
		Host:        d.envDefault("HOST", "0.0.0.0"),
		Port:        port,
		APIKeys: map[string]bool{
			"google":    d.env("GOOGLE_API_KEY") != "",
			"openai":    d.env("OPENAI_API_KEY") != "",
			"anthropic": d.env("ANTHROPIC_API_KEY") != "",
		},
		Features: Features{
			SSL:          strings.HasPrefix(url, "https://"),
			CustomDomain: agentID != "" && !strings.HasSuffix(url, ".healthuniverse.com"),
			DebugMode:    strings.EqualFold(d.env("DEBUG"), "true"),
		},
		Resources: Resources{
			MemoryLimit:    d.envDefault("MEMORY_LIMIT", "512Mi"),
			CPULimit:       d.envDefault("CPU_LIMIT", "500m"),
			RequestTimeout: timeout,
		},
	}
}

// ValidateEnvironment reports missing or questionable deployment settings.
// Errors make the environment unusable; warnings do not.
func (d *PlatformDetector) ValidateEnvironment() Result {
	r := Result{Errors: []string{}, Warnings: []string{}}

	if d.env("GOOGLE_API_KEY") == "" && d.env("OPENAI_API_KEY") == "" && d.env("ANTHROPIC_API_KEY") == "" {
		r.Warnings = append(r.Warnings, "No LLM API keys configured")
	}
	if d.env("AGENT_NAME") == "" {
		r.Warnings = append(r.Warnings, "AGENT_NAME not set")
	}
	if d.env("AGENT_VERSION") == "" {
		r.Warnings = append(r.Warnings, "AGENT_VERSION not set, defaulting to 1.0.0")
	}
	if d.env("AGENT_ORG") == "" {
		r.Warnings = append(r.Warnings, "AGENT_ORG not set")
	}

	if d.IsHealthUniverse() {
		url := d.env("HU_APP_URL")
		if !strings.HasPrefix(url, "https://") {
			r.Warnings = append(r.Warnings, "HealthUniverse URL should use HTTPS")
		}
		if ExtractAgentID(url) == "" {
			r.Warnings = append(r.Warnings, "Could not extract agent ID from URL")
		}
	}

	r.Compliant = len(r.Errors) == 0
	return r
}
