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

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2akit/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test"}, WithBaseURL(srv.URL), WithTemperature(0.2))
	require.NoError(t, err)
	return c
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"pong",
			"tool_calls":[{"id":"c1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"a\"}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}}`)
	})

	req := &model.Request{
		SystemInstruction: "sys",
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "ping"}),
			a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "earlier"}),
		},
		Config: &model.GenerateConfig{ResponseMIMEType: "application/json"},
	}
	var resp *model.Response
	for r, err := range c.GenerateContent(context.Background(), req, false) {
		require.NoError(t, err)
		resp = r
	}
	require.NotNil(t, resp)
	assert.Equal(t, "pong", resp.TextContent())
	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "a", resp.ToolCalls[0].Args["q"])
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, model.DefaultOpenAIModel, got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestGenerateStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"look","arguments":"{\"q\""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"up","arguments":":1}"}}]},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":2,"completion_tokens":3,"total_tokens":5}}`,
		}
		for _, ch := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ch)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := &model.Request{Messages: []*a2a.Message{a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"})}}
	var text string
	var final *model.Response
	for r, err := range c.GenerateContent(context.Background(), req, true) {
		require.NoError(t, err)
		if r.Partial {
			text += r.TextContent()
			continue
		}
		final = r
	}
	assert.Equal(t, "Hello", text)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.TextContent())
	require.Len(t, final.ToolCalls, 1)
	assert.Equal(t, "lookup", final.ToolCalls[0].Name)
	assert.Equal(t, float64(1), final.ToolCalls[0].Args["q"])
	assert.Equal(t, model.FinishReasonToolCalls, final.FinishReason)
	assert.Equal(t, 5, final.Usage.TotalTokens)
}

func TestGenerate_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusBadRequest)
	})
	for _, err := range c.GenerateContent(context.Background(), &model.Request{}, true) {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	}
}
