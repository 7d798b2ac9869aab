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

package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(headers http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := headers.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return info
}

// ParseAnthropicHeaders reads Anthropic rate-limit headers.
func ParseAnthropicHeaders(headers http.Header) RateLimitInfo {
	info := ParseRetryAfter(headers)
	for _, h := range []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	} {
		if v := headers.Get(h); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				info.ResetTime = t.Unix()
				break
			}
		}
	}
	info.RequestsRemaining = atoi(headers.Get("anthropic-ratelimit-requests-remaining"))
	info.TokensRemaining = atoi(headers.Get("anthropic-ratelimit-tokens-remaining"))
	return info
}

// ParseOpenAIHeaders reads OpenAI rate-limit headers.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := ParseRetryAfter(headers)
	info.RequestsRemaining = atoi(headers.Get("x-ratelimit-remaining-requests"))
	info.TokensRemaining = atoi(headers.Get("x-ratelimit-remaining-tokens"))
	return info
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
