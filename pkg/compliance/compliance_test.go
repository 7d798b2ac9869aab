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
	"bytes"
	"log/slog"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detector(env map[string]string) *PlatformDetector {
	return &PlatformDetector{Getenv: func(k string) string { return env[k] }}
}

func TestNewCard_IsCompliant(t *testing.T) {
	d := detector(map[string]string{"AGENT_ORG": "Acme", "PORT": "9000"})
	card := NewCard(CardOptions{Name: "echo", Description: "Echoes input", Detector: d})

	assert.Equal(t, "0.3.0", card.ProtocolVersion)
	assert.Equal(t, "http://localhost:9000", card.URL)
	assert.Equal(t, a2a.TransportProtocolJSONRPC, card.PreferredTransport)
	assert.Equal(t, "Acme", card.Provider.Org)
	assert.Equal(t, DefaultOrgURL, card.Provider.URL)
	assert.Equal(t, DefaultVersion, card.Version)
	assert.NotNil(t, card.Skills)
	assert.Equal(t, []string{"text/plain", "application/json"}, card.DefaultInputModes)
	assert.True(t, card.Capabilities.StateTransitionHistory)

	r := NewValidator(d.Detect()).Validate(card)
	assert.True(t, r.Compliant, r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Agent is fully A2A compliant!", r.Summary())
}

func TestValidate_EmptyCard(t *testing.T) {
	r := NewValidator(Platform{}).Validate(&a2a.AgentCard{})

	assert.False(t, r.Compliant)
	assert.Equal(t, []string{
		"AgentCard.name is required",
		"AgentCard.description is required",
		"AgentCard.url is required",
		"AgentCard.preferred_transport is required",
		"AgentCard.provider is required",
		"AgentCard.version is required",
		"AgentCard.default_input_modes is required",
		"AgentCard.default_output_modes is required",
		"AgentCard.skills must be a list (can be empty)",
		"AgentCard.protocol_version is required",
	}, r.Errors)
	assert.Equal(t, []string{"AgentCard.capabilities should be specified"}, r.Warnings)
	assert.Equal(t, "Agent has 10 compliance error(s) and 1 warning(s)", r.Summary())
}

func TestValidate_Rules(t *testing.T) {
	valid := func() *a2a.AgentCard {
		return NewCard(CardOptions{Name: "a", Description: "b", Detector: detector(nil)})
	}

	tests := []struct {
		name     string
		platform Platform
		mutate   func(*a2a.AgentCard)
		errors   []string
		warnings []string
	}{
		{
			name:   "wrong protocol",
			mutate: func(c *a2a.AgentCard) { c.ProtocolVersion = "1.0" },
			errors: []string{"Protocol version must be '0.3.0', got '1.0'"},
		},
		{
			name:   "provider without org",
			mutate: func(c *a2a.AgentCard) { c.Provider = &a2a.AgentProvider{} },
			errors: []string{"AgentCard.provider.organization is required"},
		},
		{
			name:     "no state history",
			mutate:   func(c *a2a.AgentCard) { c.Capabilities.StateTransitionHistory = false; c.Capabilities.Streaming = true },
			warnings: []string{"state_transition_history capability is recommended"},
		},
		{
			name:     "healthuniverse url mismatch",
			platform: Platform{IsHealthUniverse: true, AgentURL: "https://apps.healthuniverse.com/abc-def-ghi"},
			mutate:   func(c *a2a.AgentCard) { c.URL = "http://localhost:8000" },
			errors:   []string{"AgentCard.url must match HU_APP_URL: https://apps.healthuniverse.com/abc-def-ghi"},
			warnings: []string{"HealthUniverse URL should contain agent ID (xxx-xxx-xxx)"},
		},
		{
			name:     "healthuniverse match",
			platform: Platform{IsHealthUniverse: true, AgentURL: "https://apps.healthuniverse.com/abc-def-ghi"},
			mutate:   func(c *a2a.AgentCard) { c.URL = "https://apps.healthuniverse.com/abc-def-ghi" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := valid()
			tt.mutate(card)
			r := NewValidator(tt.platform).Validate(card)
			if tt.errors == nil {
				tt.errors = []string{}
			}
			if tt.warnings == nil {
				tt.warnings = []string{}
			}
			assert.Equal(t, tt.errors, r.Errors)
			assert.Equal(t, tt.warnings, r.Warnings)
			assert.Equal(t, len(tt.errors) == 0, r.Compliant)
		})
	}
}

func TestPlatformDetector(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Platform
	}{
		{
			name: "local default port",
			want: Platform{AgentURL: "http://localhost:8000", Environment: EnvDevelopment},
		},
		{
			name: "production",
			env:  map[string]string{"HU_APP_URL": "https://apps.healthuniverse.com/xyz-abc-qrs"},
			want: Platform{IsHealthUniverse: true, AgentURL: "https://apps.healthuniverse.com/xyz-abc-qrs", AgentID: "xyz-abc-qrs", Environment: EnvProduction},
		},
		{
			name: "staging",
			env:  map[string]string{"HU_APP_URL": "https://staging.healthuniverse.com/app"},
			want: Platform{IsHealthUniverse: true, AgentURL: "https://staging.healthuniverse.com/app", Environment: EnvStaging},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector(tt.env).Detect())
		})
	}

	assert.Equal(t, "", ExtractAgentID(""))
	assert.Equal(t, "abc-def-ghi", ExtractAgentID("https://x.io/abc-def-ghi/"))
}

func TestDeploymentConfig(t *testing.T) {
	d := detector(map[string]string{
		"HU_APP_URL":     "https://abc-def-ghi.agents.example.org",
		"OPENAI_API_KEY": "sk",
		"DEBUG":          "TRUE",
		"PORT":           "8080",
	})
	cfg := d.DeploymentConfig()

	assert.Equal(t, "healthuniverse", cfg.Platform)
	assert.Equal(t, "abc-def-ghi", cfg.AgentID)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, map[string]bool{"google": false, "openai": true, "anthropic": false}, cfg.APIKeys)
	assert.Equal(t, Features{SSL: true, CustomDomain: true, DebugMode: true}, cfg.Features)
	assert.Equal(t, Resources{MemoryLimit: "512Mi", CPULimit: "500m", RequestTimeout: 300}, cfg.Resources)
}

func TestValidateEnvironment(t *testing.T) {
	r := detector(map[string]string{"HU_APP_URL": "http://plain.example.org"}).ValidateEnvironment()
	assert.True(t, r.Compliant)
	assert.Equal(t, []string{
		"No LLM API keys configured",
		"AGENT_NAME not set",
		"AGENT_VERSION not set, defaulting to 1.0.0",
		"AGENT_ORG not set",
		"HealthUniverse URL should use HTTPS",
		"Could not extract agent ID from URL",
	}, r.Warnings)
}

func TestValidateStartup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := ValidateStartup(&a2a.AgentCard{Name: "x"}, detector(nil), true, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2A Compliance Errors:")
	assert.Contains(t, buf.String(), "AgentCard.description is required")

	r, err := ValidateStartup(&a2a.AgentCard{Name: "x"}, detector(nil), false, logger)
	require.NoError(t, err)
	assert.False(t, r.Compliant)
}
