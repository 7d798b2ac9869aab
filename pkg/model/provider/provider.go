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

// Package provider builds model.LLM clients from a model.Selection.
package provider

import (
	"context"
	"fmt"

	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/model/anthropic"
	"github.com/kadirpekel/a2akit/pkg/model/gemini"
	"github.com/kadirpekel/a2akit/pkg/model/openai"
)

// Options holds settings shared by every provider.
type Options struct {
	MaxTokens   int
	Temperature *float64
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// New builds the client for sel.
func New(ctx context.Context, sel model.Selection, opts Options) (model.LLM, error) {
	switch sel.Provider {
	case model.ProviderGemini:
		cfg := gemini.Config{
			APIKey:    sel.APIKey,
			Model:     sel.Model,
			MaxTokens: opts.MaxTokens,
			BaseURL:   opts.BaseURL,
		}
		if opts.Temperature != nil {
			cfg.Temperature = *opts.Temperature
		}
		return gemini.New(ctx, cfg)
	case model.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:      sel.APIKey,
			Model:       sel.Model,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			BaseURL:     opts.BaseURL,
		})
	case model.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:      sel.APIKey,
			Model:       sel.Model,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			BaseURL:     opts.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", sel.Provider)
	}
}

// FromEnv detects a provider from the environment and builds it.
func FromEnv(ctx context.Context, getenv func(string) string, opts Options) (model.LLM, error) {
	sel, err := model.Detect(getenv)
	if err != nil {
		return nil, err
	}
	return New(ctx, sel, opts)
}
