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

// Package compliance checks agent cards against the A2A 0.3.0 rules and
// detects the deployment platform an agent runs on.
package compliance

import (
	"fmt"
	"regexp"

	"github.com/a2aproject/a2a-go/a2a"
)

// ProtocolVersion is the only A2A protocol version cards may declare.
const ProtocolVersion = "0.3.0"

var agentIDPattern = regexp.MustCompile(`[a-z]{3}-[a-z]{3}-[a-z]{3}`)

// Result is the outcome of a card validation.
type Result struct {
	Compliant bool     `json:"compliant"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}

// Summary returns a one-line description of the result.
func (r Result) Summary() string {
	if r.Compliant {
		return "Agent is fully A2A compliant!"
	}
	return fmt.Sprintf("Agent has %d compliance error(s) and %d warning(s)", len(r.Errors), len(r.Warnings))
}

// Validator checks agent cards.
type Validator struct {
	// Platform selects the platform specific rules.
	Platform Platform
}

// NewValidator returns a validator for the detected platform.
func NewValidator(platform Platform) *Validator {
	return &Validator{Platform: platform}
}

// Validate runs every check and collects the findings.
func (v *Validator) Validate(card *a2a.AgentCard) Result {
	r := Result{Errors: []string{}, Warnings: []string{}}
	if card == nil {
		r.Errors = append(r.Errors, "AgentCard is required")
		return r
	}

	r.Errors = append(r.Errors, requiredFieldErrors(card)...)

	switch card.ProtocolVersion {
	case "":
		r.Errors = append(r.Errors, "AgentCard.protocol_version is required")
	case ProtocolVersion:
	default:
		r.Errors = append(r.Errors, fmt.Sprintf("Protocol version must be '%s', got '%s'", ProtocolVersion, card.ProtocolVersion))
	}

	if v.Platform.IsHealthUniverse {
		if v.Platform.AgentURL != "" && card.URL != v.Platform.AgentURL {
			r.Errors = append(r.Errors, "AgentCard.url must match HU_APP_URL: "+v.Platform.AgentURL)
		}
		if card.URL != "" && !agentIDPattern.MatchString(card.URL) {
			r.Warnings = append(r.Warnings, "HealthUniverse URL should contain agent ID (xxx-xxx-xxx)")
		}
	}

	caps := card.Capabilities
	if !caps.Streaming && !caps.PushNotifications && !caps.StateTransitionHistory && len(caps.Extensions) == 0 {
		r.Warnings = append(r.Warnings, "AgentCard.capabilities should be specified")
	} else if !caps.StateTransitionHistory {
		r.Warnings = append(r.Warnings, "state_transition_history capability is recommended")
	}

	r.Compliant = len(r.Errors) == 0
	return r
}

func requiredFieldErrors(card *a2a.AgentCard) []string {
	var errs []string
	required := func(ok bool, field string) {
		if !ok {
			errs = append(errs, "AgentCard."+field+" is required")
		}
	}

	required(card.Name != "", "name")
	required(card.Description != "", "description")
	required(card.URL != "", "url")
	required(card.PreferredTransport != "", "preferred_transport")
	if card.Provider == nil {
		required(false, "provider")
	} else {
		required(card.Provider.Org != "", "provider.organization")
	}
	required(card.Version != "", "version")
	required(len(card.DefaultInputModes) > 0, "default_input_modes")
	required(len(card.DefaultOutputModes) > 0, "default_output_modes")

	if card.Skills == nil {
		errs = append(errs, "AgentCard.skills must be a list (can be empty)")
	}
	return errs
}
