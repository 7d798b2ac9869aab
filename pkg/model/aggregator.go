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
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// StreamingAggregator turns provider deltas into partial responses and
// builds the final aggregated response.
//
//	agg := NewStreamingAggregator()
//	for resp, err := range agg.ProcessTextDelta(delta) {
//	    yield(resp, err)
//	}
//	if final := agg.Close(); final != nil {
//	    yield(final, nil)
//	}
type StreamingAggregator struct {
	text         strings.Builder
	toolCalls    []ToolCall
	usage        *Usage
	finishReason FinishReason
}

// NewStreamingAggregator returns an empty aggregator.
func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{finishReason: FinishReasonStop}
}

// ProcessTextDelta records a text delta and yields it as a partial response.
func (s *StreamingAggregator) ProcessTextDelta(text string) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if text == "" {
			return
		}
		s.text.WriteString(text)
		yield(&Response{
			Content: &Content{
				Parts: []a2a.Part{a2a.TextPart{Text: text}},
				Role:  a2a.MessageRoleAgent,
			},
			Partial: true,
		}, nil)
	}
}

// ProcessToolCall records a completed tool call and yields it.
func (s *StreamingAggregator) ProcessToolCall(tc ToolCall) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		s.toolCalls = append(s.toolCalls, tc)
		yield(&Response{
			Content:   &Content{Role: a2a.MessageRoleAgent},
			Partial:   true,
			ToolCalls: []ToolCall{tc},
		}, nil)
	}
}

// Text returns everything accumulated so far.
func (s *StreamingAggregator) Text() string {
	return s.text.String()
}

func (s *StreamingAggregator) SetUsage(usage *Usage) {
	s.usage = usage
}

func (s *StreamingAggregator) SetFinishReason(reason FinishReason) {
	if reason != "" {
		s.finishReason = reason
	}
}

// Close returns the aggregated response, or nil when nothing was
// produced.
func (s *StreamingAggregator) Close() *Response {
	if s.text.Len() == 0 && len(s.toolCalls) == 0 {
		return nil
	}
	resp := &Response{
		Content:      &Content{Role: a2a.MessageRoleAgent},
		TurnComplete: true,
		ToolCalls:    s.toolCalls,
		Usage:        s.usage,
		FinishReason: s.finishReason,
	}
	if s.text.Len() > 0 {
		resp.Content.Parts = []a2a.Part{a2a.TextPart{Text: s.text.String()}}
	}
	return resp
}
