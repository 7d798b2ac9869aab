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

// Package gemini implements model.LLM on google.golang.org/genai.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"google.golang.org/genai"

	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/model"
)

// Config configures the Gemini client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64

	// BaseURL overrides the API endpoint.
	BaseURL string
}

type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a Gemini client.
func New(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = model.DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &geminiModel{client: client, name: cfg.Model, config: cfg}, nil
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) Provider() model.Provider {
	return model.ProviderGemini
}

func (m *geminiModel) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return m.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		yield(m.generate(ctx, req))
	}
}

func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	genResp, err := m.client.Models.GenerateContent(ctx, m.name, buildContents(req), m.buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}
	return parseResponse(genResp)
}

func (m *geminiModel) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		agg := model.NewStreamingAggregator()
		emitted := map[string]bool{}

		for genResp, err := range m.client.Models.GenerateContentStream(ctx, m.name, buildContents(req), m.buildConfig(req)) {
			if err != nil {
				yield(nil, fmt.Errorf("Gemini streaming error: %w", err))
				return
			}
			for r, rerr := range processChunk(agg, genResp, emitted) {
				if !yield(r, rerr) {
					return
				}
			}
		}

		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func processChunk(agg *model.StreamingAggregator, genResp *genai.GenerateContentResponse, emitted map[string]bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if genResp.UsageMetadata != nil {
			agg.SetUsage(usage(genResp.UsageMetadata))
		}
		if len(genResp.Candidates) == 0 {
			return
		}
		candidate := genResp.Candidates[0]
		if candidate.FinishReason != "" {
			agg.SetFinishReason(mapFinishReason(candidate.FinishReason))
		}
		if candidate.Content == nil {
			return
		}

		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				for r, err := range agg.ProcessTextDelta(part.Text) {
					if !yield(r, err) {
						return
					}
				}
			}
			if part.FunctionCall == nil {
				continue
			}
			tc := toolCall(part.FunctionCall)
			// Gemini can repeat a function call across chunks.
			if emitted[tc.ID] {
				continue
			}
			emitted[tc.ID] = true
			for r, err := range agg.ProcessToolCall(tc) {
				if !yield(r, err) {
					return
				}
			}
		}
	}
}

// toolCall converts a function call, deriving a stable ID from its name
// and arguments when Gemini omits one.
func toolCall(fc *genai.FunctionCall) model.ToolCall {
	id := fc.ID
	if id == "" {
		raw, _ := json.Marshal(map[string]any{"name": fc.Name, "args": fc.Args})
		sum := sha256.Sum256(raw)
		id = fmt.Sprintf("call-%x", sum[:12])
	}
	return model.ToolCall{ID: id, Name: fc.Name, Args: fc.Args}
}

func buildContents(req *model.Request) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range req.Messages {
		if c := messageToContent(msg); c != nil {
			contents = append(contents, c)
		}
	}
	return contents
}

func messageToContent(msg *a2a.Message) *genai.Content {
	if msg == nil {
		return nil
	}

	var parts []*genai.Part
	var rest []a2a.Part
	for _, p := range msg.Parts {
		fp, ok := p.(a2a.FilePart)
		if !ok {
			rest = append(rest, p)
			continue
		}
		switch f := fp.File.(type) {
		case a2a.FileBytes:
			data, err := base64.StdEncoding.DecodeString(f.Bytes)
			if err != nil || f.MimeType == "" {
				rest = append(rest, p)
				continue
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: f.MimeType, Data: data}})
		case a2a.FileURI:
			if f.MimeType == "" || !strings.HasPrefix(f.URI, "gs://") && !strings.HasPrefix(f.URI, "https://") {
				rest = append(rest, p)
				continue
			}
			parts = append(parts, &genai.Part{FileData: &genai.FileData{MIMEType: f.MimeType, FileURI: f.URI}})
		}
	}
	if text := message.FormatForLLM(rest); text != "" {
		parts = append([]*genai.Part{{Text: text}}, parts...)
	}
	if len(parts) == 0 {
		return nil
	}

	role := genai.RoleUser
	if msg.Role == a2a.MessageRoleAgent {
		role = genai.RoleModel
	}
	return &genai.Content{Parts: parts, Role: role}
}

func (m *geminiModel) buildConfig(req *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			config.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
		if cfg.TopP != nil {
			config.TopP = genai.Ptr(float32(*cfg.TopP))
		}
		config.StopSequences = cfg.StopSequences
		config.ResponseMIMEType = cfg.ResponseMIMEType
	}
	if config.Temperature == nil && m.config.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(m.config.Temperature))
	}
	if config.MaxOutputTokens == 0 && m.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(m.config.MaxTokens)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

// toSchema converts a JSON schema object to a genai schema.
func toSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	s.Required = stringList(schema["required"])
	s.Enum = stringList(schema["enum"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		var out []string
		for _, x := range vals {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, errors.New("empty response from Gemini")
	}
	candidate := genResp.Candidates[0]

	resp := &model.Response{
		TurnComplete: true,
		FinishReason: mapFinishReason(candidate.FinishReason),
		Content:      &model.Content{Role: a2a.MessageRoleAgent},
	}
	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, toolCall(part.FunctionCall))
			}
		}
		if text.Len() > 0 {
			resp.Content.Parts = []a2a.Part{a2a.TextPart{Text: text.String()}}
		}
	}
	if len(resp.ToolCalls) > 0 && resp.FinishReason == model.FinishReasonStop {
		resp.FinishReason = model.FinishReasonToolCalls
	}
	if genResp.UsageMetadata != nil {
		resp.Usage = usage(genResp.UsageMetadata)
	}
	return resp, nil
}

func usage(u *genai.GenerateContentResponseUsageMetadata) *model.Usage {
	return &model.Usage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
