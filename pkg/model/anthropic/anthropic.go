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

// Package anthropic implements model.LLM on the Anthropic Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/a2akit/pkg/httpclient"
	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/model"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Config configures the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
}

// Client implements model.LLM.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature *float64
}

// New creates an Anthropic client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = model.DefaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &Client{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Name() string {
	return c.model
}

func (c *Client) Provider() model.Provider {
	return model.ProviderAnthropic
}

func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		yield(c.generate(ctx, req))
	}
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) post(ctx context.Context, req *model.Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(c.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(&apiResp), nil
}

// streamState tracks tool_use blocks while their JSON input streams in.
type streamState struct {
	toolCalls map[int]*model.ToolCall
	toolJSON  map[int]*strings.Builder
}

func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		resp, err := c.post(ctx, req, true)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		agg := model.NewStreamingAggregator()
		state := &streamState{
			toolCalls: map[int]*model.ToolCall{},
			toolJSON:  map[int]*strings.Builder{},
		}
		var usage model.Usage

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield(nil, fmt.Errorf("stream read error: %w", err))
				return
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var event streamEvent
				if jerr := json.Unmarshal([]byte(data), &event); jerr == nil {
					if event.Type == "error" && event.Error != nil {
						yield(nil, fmt.Errorf("anthropic stream error: %s: %s", event.Error.Type, event.Error.Message))
						return
					}
					for r, rerr := range processEvent(&event, state, agg, &usage) {
						if !yield(r, rerr) {
							return
						}
					}
				}
			}
			if err != nil {
				break
			}
		}

		if usage.PromptTokens > 0 || usage.CompletionTokens > 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			agg.SetUsage(&usage)
		}
		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func processEvent(event *streamEvent, state *streamState, agg *model.StreamingAggregator, usage *model.Usage) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		switch event.Type {
		case "message_start":
			if event.Message != nil {
				usage.PromptTokens = event.Message.Usage.InputTokens
			}
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				state.toolCalls[event.Index] = &model.ToolCall{ID: event.ContentBlock.ID, Name: event.ContentBlock.Name}
				state.toolJSON[event.Index] = &strings.Builder{}
			}
		case "content_block_delta":
			if event.Delta == nil {
				return
			}
			switch event.Delta.Type {
			case "text_delta":
				for r, err := range agg.ProcessTextDelta(event.Delta.Text) {
					if !yield(r, err) {
						return
					}
				}
			case "input_json_delta":
				if buf, ok := state.toolJSON[event.Index]; ok {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			tc, ok := state.toolCalls[event.Index]
			if !ok {
				return
			}
			if raw := state.toolJSON[event.Index].String(); raw != "" {
				_ = json.Unmarshal([]byte(raw), &tc.Args)
			}
			delete(state.toolCalls, event.Index)
			for r, err := range agg.ProcessToolCall(*tc) {
				if !yield(r, err) {
					return
				}
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				agg.SetFinishReason(mapStopReason(event.Delta.StopReason))
			}
			if event.Usage != nil {
				usage.CompletionTokens = event.Usage.OutputTokens
			}
		}
	}
}

func (c *Client) buildRequest(req *model.Request, stream bool) *apiRequest {
	apiReq := &apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Stream:    stream,
		System:    req.SystemInstruction,
	}
	if c.temperature != nil {
		apiReq.Temperature = c.temperature
	}
	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens != nil {
			apiReq.MaxTokens = *cfg.MaxTokens
		}
		apiReq.TopP = cfg.TopP
		apiReq.StopSequences = cfg.StopSequences
	}

	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		text := message.FormatForLLM(msg.Parts)
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == a2a.MessageRoleAgent {
			role = "assistant"
		}
		// Consecutive turns from the same role are merged; the API
		// requires alternation.
		if n := len(apiReq.Messages); n > 0 && apiReq.Messages[n-1].Role == role {
			apiReq.Messages[n-1].Content = append(apiReq.Messages[n-1].Content, apiContent{Type: "text", Text: text})
			continue
		}
		apiReq.Messages = append(apiReq.Messages, apiMessage{
			Role:    role,
			Content: []apiContent{{Type: "text", Text: text}},
		})
	}

	for _, t := range req.Tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return apiReq
}

func parseResponse(resp *apiResponse) *model.Response {
	result := &model.Response{
		TurnComplete: true,
		FinishReason: mapStopReason(resp.StopReason),
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	var parts []a2a.Part
	for _, content := range resp.Content {
		switch content.Type {
		case "text":
			parts = append(parts, a2a.TextPart{Text: content.Text})
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, model.ToolCall{
				ID:   content.ID,
				Name: content.Name,
				Args: content.Input,
			})
		}
	}
	result.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
	return result
}

func mapStopReason(reason string) model.FinishReason {
	switch reason {
	case "tool_use":
		return model.FinishReasonToolCalls
	case "max_tokens":
		return model.FinishReasonLength
	case "refusal":
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

type apiRequest struct {
	Model         string       `json:"model"`
	Messages      []apiMessage `json:"messages"`
	MaxTokens     int          `json:"max_tokens"`
	Temperature   *float64     `json:"temperature,omitempty"`
	TopP          *float64     `json:"top_p,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Stream        bool         `json:"stream"`
	System        string       `json:"system,omitempty"`
	Tools         []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type apiTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type apiResponse struct {
	ID         string       `json:"id"`
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	Message      *apiResponse `json:"message,omitempty"`
	Delta        *apiDelta    `json:"delta,omitempty"`
	ContentBlock *apiContent  `json:"content_block,omitempty"`
	Usage        *apiUsage    `json:"usage,omitempty"`
	Error        *apiError    `json:"error,omitempty"`
}

type apiDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var _ model.LLM = (*Client)(nil)
