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

package model

import (
	"errors"
	"log/slog"
	"os"
	"strings"
)

// Default model names per provider.
const (
	DefaultGeminiModel    = "gemini-2.0-flash-001"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-20241022"
)

// ErrNoAPIKey is returned by Detect when no provider key is configured.
var ErrNoAPIKey = errors.New("No LLM API key found! Please set one of: GOOGLE_API_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY")

// Selection is a resolved provider, model and credential.
type Selection struct {
	Provider Provider
	Model    string
	APIKey   string
}

type candidate struct {
	provider     Provider
	keyVar       string
	modelVar     string
	defaultModel string
}

// Checked in priority order.
var candidates = []candidate{
	{ProviderGemini, "GOOGLE_API_KEY", "GEMINI_MODEL", DefaultGeminiModel},
	{ProviderOpenAI, "OPENAI_API_KEY", "OPENAI_MODEL", DefaultOpenAIModel},
	{ProviderAnthropic, "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", DefaultAnthropicModel},
}

// Detect picks a provider from the environment. LLM_PROVIDER wins when
// its key is present; otherwise the first provider with a key is used.
// A nil getenv reads the process environment.
func Detect(getenv func(string) string) (Selection, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if preferred := strings.ToLower(strings.TrimSpace(getenv("LLM_PROVIDER"))); preferred != "" {
		for _, c := range candidates {
			if string(c.provider) != preferred {
				continue
			}
			if sel, ok := c.selection(getenv); ok {
				return sel, nil
			}
		}
		slog.Warn("LLM_PROVIDER has no usable API key, falling back to auto-detection", "provider", preferred)
	}

	for _, c := range candidates {
		if sel, ok := c.selection(getenv); ok {
			return sel, nil
		}
	}
	return Selection{}, ErrNoAPIKey
}

func (c candidate) selection(getenv func(string) string) (Selection, bool) {
	key := getenv(c.keyVar)
	if key == "" {
		return Selection{}, false
	}
	name := getenv(c.modelVar)
	if name == "" {
		name = c.defaultModel
	}
	return Selection{Provider: c.provider, Model: name, APIKey: key}, true
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, bool) {
	for _, c := range candidates {
		if string(c.provider) == strings.ToLower(name) {
			return c.provider, true
		}
	}
	return "", false
}
