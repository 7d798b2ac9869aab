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

// Package model defines the LLM interface used by the LLM executor.
//
// GenerateContent returns an iterator for both modes. Non-streaming calls
// yield one complete Response. Streaming calls yield Partial responses as
// deltas arrive and finish with one aggregated Response (Partial=false).
package model

import (
	"context"
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// LLM is a language model client.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the backing provider.
	Provider() Provider

	// GenerateContent produces responses for req.
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the client.
	Close() error
}

// Provider identifies an LLM vendor.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Request is the input for one model call.
type Request struct {
	// Messages is the conversation, oldest first.
	Messages []*a2a.Message

	// Tools the model may ask to call.
	Tools []Tool

	Config *GenerateConfig

	// SystemInstruction is sent ahead of the conversation.
	SystemInstruction string
}

// GenerateConfig carries optional sampling parameters.
type GenerateConfig struct {
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	StopSequences []string

	// ResponseMIMEType requests structured output, e.g. "application/json".
	ResponseMIMEType string
}

// Clone returns a deep copy of c.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		v := *c.Temperature
		clone.Temperature = &v
	}
	if c.MaxTokens != nil {
		v := *c.MaxTokens
		clone.MaxTokens = &v
	}
	if c.TopP != nil {
		v := *c.TopP
		clone.TopP = &v
	}
	if c.StopSequences != nil {
		clone.StopSequences = append([]string(nil), c.StopSequences...)
	}
	return &clone
}

// Tool declares a function the model may call. Parameters is a JSON
// schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model's request to invoke a declared tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments,omitempty"`
}

// Response is one result from GenerateContent.
type Response struct {
	Content *Content

	// Partial marks a streaming delta. The aggregated response that ends a
	// stream has Partial=false.
	Partial bool

	TurnComplete bool
	ToolCalls    []ToolCall
	Usage        *Usage
	FinishReason FinishReason
}

// Content is the generated content of a response.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

// TextContent concatenates the text parts of r.
func (r *Response) TextContent() string {
	if r == nil || r.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Content.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// HasToolCalls reports whether the model asked for tool invocations.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToMessage converts r to an a2a message.
func (r *Response) ToMessage() *a2a.Message {
	if r == nil || r.Content == nil {
		return nil
	}
	return a2a.NewMessage(r.Content.Role, r.Content.Parts...)
}

// MessageText joins the text of every text part in msg.
func MessageText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var texts []string
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}
