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
	"github.com/a2aproject/a2a-go/a2a"
)

// Card defaults.
const (
	DefaultVersion = "1.0.0"
	DefaultOrg     = "Your Organization"
	DefaultOrgURL  = "https://example.com"
)

// DefaultModes are the input and output modes used when none are given.
var DefaultModes = []string{"text/plain", "application/json"}

// CardOptions describes the agent for NewCard. Empty fields are filled
// from the environment or defaults.
type CardOptions struct {
	Name        string
	Description string
	Version     string
	URL         string
	Skills      []a2a.AgentSkill
	Streaming   bool

	Organization    string
	OrganizationURL string
	IconURL         string
	DocsURL         string

	InputModes  []string
	OutputModes []string

	// Detector resolves the URL and env lookups. Nil uses the process
	// environment.
	Detector *PlatformDetector
}

// NewCard builds a card that passes Validate for the detected platform.
func NewCard(opts CardOptions) *a2a.AgentCard {
	d := opts.Detector
	if d == nil {
		d = NewPlatformDetector()
	}

	url := opts.URL
	if url == "" {
		url = d.AgentURL()
	}

	skills := opts.Skills
	if skills == nil {
		skills = []a2a.AgentSkill{}
	}

	return &a2a.AgentCard{
		ProtocolVersion:    ProtocolVersion,
		Name:               opts.Name,
		Description:        opts.Description,
		URL:                url,
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Provider: &a2a.AgentProvider{
			Org: firstNonEmpty(opts.Organization, d.env("AGENT_ORG"), DefaultOrg),
			URL: firstNonEmpty(opts.OrganizationURL, d.env("AGENT_ORG_URL"), DefaultOrgURL),
		},
		Version:            firstNonEmpty(opts.Version, d.env("AGENT_VERSION"), DefaultVersion),
		Skills:             skills,
		DefaultInputModes:  modesOrDefault(opts.InputModes),
		DefaultOutputModes: modesOrDefault(opts.OutputModes),
		Capabilities: a2a.AgentCapabilities{
			Streaming:              opts.Streaming,
			PushNotifications:      false,
			StateTransitionHistory: true,
		},
		IconURL:          firstNonEmpty(opts.IconURL, d.env("AGENT_ICON_URL")),
		DocumentationURL: firstNonEmpty(opts.DocsURL, d.env("AGENT_DOCS_URL")),
	}
}

func modesOrDefault(modes []string) []string {
	if len(modes) > 0 {
		return modes
	}
	return append([]string(nil), DefaultModes...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
