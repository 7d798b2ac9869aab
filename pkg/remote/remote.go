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

// Package remote calls other A2A agents by registry name or URL.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/registry"
	"github.com/kadirpekel/a2akit/pkg/resilience"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 60
)

// Card paths tried in order. Agents in the wild publish any of them.
var cardPaths = []string{
	"/.well-known/agent-card.json",
	"/.well-known/agent.json",
	"/.well-known/agentcard.json",
}

// ErrTaskFailed is returned when the remote task ends in failed,
// canceled or rejected.
var ErrTaskFailed = errors.New("remote task did not complete")

// Caller sends messages to remote agents. Agent cards are cached per URL.
type Caller struct {
	registry     *registry.Registry
	registryPath string
	resolver     *agentcard.Resolver
	httpClient   *http.Client
	handler      *resilience.ErrorHandler
	logger       *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
	maxPolls     int

	mu    sync.Mutex
	cards map[string]*a2a.AgentCard
}

// Option configures a Caller.
type Option func(*Caller)

// WithRegistry resolves names against r instead of the registry file.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Caller) {
		c.registry = r
	}
}

// WithRegistryPath sets the registry file used for names.
func WithRegistryPath(path string) Option {
	return func(c *Caller) {
		c.registryPath = path
	}
}

// WithHTTPClient is used for both card resolution and calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Caller) {
		if client != nil {
			c.httpClient = client
			c.resolver = agentcard.NewResolver(client)
		}
	}
}

func WithErrorHandler(h *resilience.ErrorHandler) Option {
	return func(c *Caller) {
		if h != nil {
			c.handler = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPolling sets how non-terminal tasks are polled for completion.
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(c *Caller) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
	}
}

// NewCaller creates a Caller. Without WithErrorHandler the resilience
// layers come from the environment. Calls are bounded by the context and
// WithTimeout rather than an HTTP client timeout.
func NewCaller(opts ...Option) *Caller {
	c := &Caller{
		resolver:     agentcard.DefaultResolver,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
		cards:        make(map[string]*a2a.AgentCard),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.handler == nil {
		c.handler = resilience.NewErrorHandler(resilience.OptionsFromEnv(), c.logger)
	}
	return c
}

// ResolveURL maps a registry name or URL to a base URL.
func (c *Caller) ResolveURL(target string) (string, error) {
	if c.registry != nil {
		return c.registry.Resolve(target)
	}
	return registry.Resolve(target, c.registryPath)
}

// Card fetches the agent card for target.
func (c *Caller) Card(ctx context.Context, target string) (*a2a.AgentCard, error) {
	baseURL, err := c.ResolveURL(target)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	card, ok := c.cards[baseURL]
	c.mu.Unlock()
	if ok {
		return card, nil
	}

	var lastErr error
	for _, path := range cardPaths {
		c.logger.Debug("Fetching agent card", "url", baseURL+path)
		card, err := c.resolver.Resolve(ctx, baseURL, agentcard.WithPath(path))
		if err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.cards[baseURL] = card
		c.mu.Unlock()
		return card, nil
	}
	return nil, fmt.Errorf("fetch agent card from %s: %w", baseURL, lastErr)
}

// ClearCache forgets fetched agent cards.
func (c *Caller) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cards)
}

func (c *Caller) client(ctx context.Context, card *a2a.AgentCard) (*a2aclient.Client, error) {
	client, err := a2aclient.NewFromCard(ctx, card, a2aclient.WithJSONRPCTransport(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", card.Name, err)
	}
	return client, nil
}

// CallOption adjusts a single call.
type CallOption func(*a2a.Message)

// WithContextID continues an existing conversation.
func WithContextID(id string) CallOption {
	return func(m *a2a.Message) {
		m.ContextID = id
	}
}

func newMessage(text string, opts []CallOption) *a2a.Message {
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	for _, opt := range opts {
		opt(msg)
	}
	return msg
}

// Call sends text to target and returns the text of the reply.
func (c *Caller) Call(ctx context.Context, target, text string, opts ...CallOption) (string, error) {
	return resilience.Do(ctx, c.handler, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		card, err := c.Card(ctx, target)
		if err != nil {
			return "", err
		}
		client, err := c.client(ctx, card)
		if err != nil {
			return "", err
		}
		defer func() { _ = client.Destroy() }()

		c.logger.Info("Calling agent", "agent", card.Name, "target", target)
		result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: newMessage(text, opts)})
		if err != nil {
			return "", fmt.Errorf("call %s: %w", card.Name, err)
		}

		switch r := result.(type) {
		case *a2a.Message:
			return PartsText(r.Parts), nil
		case *a2a.Task:
			t, err := c.await(ctx, client, r)
			if err != nil {
				return "", err
			}
			return TaskText(t)
		default:
			return "", fmt.Errorf("call %s: unexpected result %T", card.Name, result)
		}
	})
}

// await polls t until it leaves the submitted and working states.
func (c *Caller) await(ctx context.Context, client *a2aclient.Client, t *a2a.Task) (*a2a.Task, error) {
	for i := 0; i < c.maxPolls && !settled(t); i++ {
		c.logger.Debug("Task still running, polling", "task_id", t.ID, "poll", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		next, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: t.ID})
		if err != nil {
			return nil, fmt.Errorf("poll task %s: %w", t.ID, err)
		}
		t = next
	}
	if !settled(t) {
		return nil, fmt.Errorf("task %s did not complete after %d polls: %w", t.ID, c.maxPolls, context.DeadlineExceeded)
	}
	return t, nil
}

func settled(t *a2a.Task) bool {
	st := task.FromWire(t.Status.State)
	return st != task.StateSubmitted && st != task.StateWorking
}

// CallJSON sends data as JSON text and decodes the reply. Replies that
// hold no JSON object are returned as {"response": text}.
func (c *Caller) CallJSON(ctx context.Context, target string, data map[string]any, opts ...CallOption) (map[string]any, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	reply, err := c.Call(ctx, target, string(payload), opts...)
	if err != nil {
		return nil, err
	}
	if out, err := message.ExtractJSON(reply); err == nil {
		return out, nil
	}
	return map[string]any{"response": reply}, nil
}

// Stream sends text and yields reply text as it arrives. Agents without
// streaming support are called once.
func (c *Caller) Stream(ctx context.Context, target, text string, opts ...CallOption) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		card, err := resilience.Do(ctx, c.handler, func(ctx context.Context) (*a2a.AgentCard, error) {
			return c.Card(ctx, target)
		})
		if err != nil {
			yield("", err)
			return
		}
		if !card.Capabilities.Streaming {
			reply, err := c.Call(ctx, target, text, opts...)
			yield(reply, err)
			return
		}

		client, err := c.client(ctx, card)
		if err != nil {
			yield("", err)
			return
		}
		defer func() { _ = client.Destroy() }()

		c.logger.Info("Streaming from agent", "agent", card.Name)
		params := &a2a.MessageSendParams{Message: newMessage(text, opts)}
		for event, err := range client.SendStreamingMessage(ctx, params) {
			if err != nil {
				yield("", fmt.Errorf("stream %s: %w", card.Name, err))
				return
			}
			var chunk string
			switch e := event.(type) {
			case *a2a.TaskArtifactUpdateEvent:
				if e.Artifact != nil {
					chunk = PartsText(e.Artifact.Parts)
				}
			case *a2a.Message:
				chunk = PartsText(e.Parts)
			case *a2a.TaskStatusUpdateEvent:
				if e.Final {
					if st := task.FromWire(e.Status.State); st.IsTerminal() && st != task.StateCompleted {
						yield("", failure(string(e.TaskID), st, e.Status.Message))
					}
					return
				}
			}
			if chunk != "" && !yield(chunk, nil) {
				return
			}
		}
	}
}

// TaskText extracts the reply from a finished task: the first artifact,
// then the last history message, then the status message.
func TaskText(t *a2a.Task) (string, error) {
	if st := task.FromWire(t.Status.State); st.IsTerminal() && st != task.StateCompleted {
		return "", failure(string(t.ID), st, t.Status.Message)
	}
	for _, a := range t.Artifacts {
		if a == nil {
			continue
		}
		if text := PartsText(a.Parts); text != "" {
			return text, nil
		}
	}
	for i := len(t.History) - 1; i >= 0; i-- {
		if m := t.History[i]; m != nil && m.Role == a2a.MessageRoleAgent {
			if text := PartsText(m.Parts); text != "" {
				return text, nil
			}
		}
	}
	if m := t.Status.Message; m != nil {
		return PartsText(m.Parts), nil
	}
	return "", nil
}

func failure(taskID string, st task.State, msg *a2a.Message) error {
	reason := "unknown error"
	if msg != nil {
		if text := PartsText(msg.Parts); text != "" {
			reason = text
		}
	}
	return fmt.Errorf("%w: task %s %s: %s", ErrTaskFailed, taskID, st, reason)
}

// PartsText joins text parts with newlines. Data parts are rendered as
// JSON.
func PartsText(parts []a2a.Part) string {
	var out []string
	for _, p := range parts {
		switch v := p.(type) {
		case a2a.TextPart:
			if v.Text != "" {
				out = append(out, v.Text)
			}
		case a2a.DataPart:
			if b, err := json.Marshal(v.Data); err == nil {
				out = append(out, string(b))
			}
		}
	}
	return strings.Join(out, "\n")
}
