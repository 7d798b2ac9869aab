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

package session

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// EstimateCounter approximates four characters per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// TokenCounter counts tokens with a tiktoken encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewCounter returns a tiktoken counter for model, falling back to
// cl100k_base for unknown models and to EstimateCounter when no encoding
// can be loaded.
func NewCounter(model string) Counter {
	cacheMu.RLock()
	enc, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: enc, model: model}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return EstimateCounter{}
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()

	return &TokenCounter{encoding: enc, model: model}
}

func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// Model returns the model the encoding was chosen for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// Per-message overhead of the chat format (<|start|>role ... <|end|>).
const messageOverhead = 3

// CountMessage returns the tokens one message costs in a prompt.
func CountMessage(c Counter, m Message) int {
	return messageOverhead + c.Count(m.Role) + c.Count(m.Content)
}

// FitTokens returns the most recent messages that fit in budget tokens,
// oldest first.
func FitTokens(c Counter, messages []Message, budget int) []Message {
	if c == nil {
		c = EstimateCounter{}
	}
	used := messageOverhead
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		n := CountMessage(c, messages[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return messages[start:]
}
