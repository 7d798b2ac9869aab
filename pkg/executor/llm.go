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

package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/a2akit/pkg/document"
	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/model/provider"
	"github.com/kadirpekel/a2akit/pkg/rpcerror"
	"github.com/kadirpekel/a2akit/pkg/session"
	"github.com/kadirpekel/a2akit/pkg/task"
)

const (
	// DefaultHistoryTokens bounds the prior turns sent with a request.
	DefaultHistoryTokens = 4000

	// partialEvery is the number of streamed chunks between partial
	// status updates.
	partialEvery = 5

	// ArtifactName names the artifact holding the model reply.
	ArtifactName = "response"
	// ToolCallsArtifact names the artifact listing requested tool calls.
	ToolCallsArtifact = "tool_calls"
)

// LLMAgent describes an agent answered by a language model.
type LLMAgent interface {
	Name() string
	Description() string
	// Instruction is the system prompt.
	Instruction() string
	// Tools are declared to the model. Calls are reported, not executed.
	Tools() []model.Tool
}

// MessageProcessor is implemented by agents that can answer without a
// model.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, text string) (string, error)
}

// WithLLM sets the model instead of detecting one from the environment.
func WithLLM(llm model.LLM) Option {
	return func(c *config) {
		c.llm = llm
		c.llmSet = true
	}
}

// WithoutLLM runs the agent in non-LLM mode.
func WithoutLLM() Option {
	return WithLLM(nil)
}

// WithSessions keeps per-context history so follow-up messages carry the
// earlier turns.
func WithSessions(m *session.Manager) Option {
	return func(c *config) {
		c.sessions = m
	}
}

// WithHistoryTokens bounds the history sent to the model.
func WithHistoryTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.historyTokens = n
		}
	}
}

// WithTokenRecorder reports model token usage.
func WithTokenRecorder(r TokenRecorder) Option {
	return func(c *config) {
		c.tokens = r
	}
}

// LLMExecutor answers requests with a language model.
type LLMExecutor struct {
	agent LLMAgent
	llm   model.LLM
	cfg   *config
}

// NewLLM creates an executor for agent. Without WithLLM the provider is
// detected from the environment; when no API key is set the executor
// falls back to non-LLM mode.
func NewLLM(ctx context.Context, agent LLMAgent, opts ...Option) (*LLMExecutor, error) {
	cfg := newConfig(opts)
	e := &LLMExecutor{agent: agent, cfg: cfg, llm: cfg.llm}
	if cfg.llmSet {
		return e, nil
	}

	llm, err := provider.FromEnv(ctx, os.Getenv, provider.Options{})
	switch {
	case errors.Is(err, model.ErrNoAPIKey):
		cfg.logger.Warn("LLM not configured, running without a model", "agent", agent.Name())
	case err != nil:
		return nil, fmt.Errorf("create LLM for %s: %w", agent.Name(), err)
	default:
		cfg.logger.Info("LLM configured", "agent", agent.Name(), "provider", llm.Provider(), "model", llm.Name())
		e.llm = llm
	}
	return e, nil
}

// Name returns the agent name.
func (e *LLMExecutor) Name() string {
	return e.agent.Name()
}

// LLM returns the model, or nil in non-LLM mode.
func (e *LLMExecutor) LLM() model.LLM {
	return e.llm
}

// Close releases the model.
func (e *LLMExecutor) Close() error {
	if e.llm == nil {
		return nil
	}
	return e.llm.Close()
}

// Execute implements a2asrv.AgentExecutor.
func (e *LLMExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	name := e.agent.Name()
	sink := e.cfg.sinks(reqCtx, queue)

	text := message.FirstText(reqCtx.Message)
	files := message.Files(reqCtx.Message)
	if strings.TrimSpace(text) == "" && len(files) == 0 {
		return sink.WriteMessage(ctx, "Please provide input for the "+name)
	}

	if st := reqCtx.StoredTask; st != nil && task.FromWire(st.Status.State).IsTerminal() {
		return rpcerror.NewTaskTerminalState(string(reqCtx.TaskID), string(st.Status.State))
	}

	mgr := e.cfg.newManager(reqCtx, sink)
	ectx := rpcerror.Context{
		TaskID:    mgr.TaskID(),
		ContextID: mgr.ContextID(),
		Agent:     name,
		Method:    "execute",
		RequestID: NewRequestID(time.Now()),
	}
	logger := e.cfg.logger.With("agent", name, "task_id", ectx.TaskID, "request_id", ectx.RequestID)

	stop, err := e.cfg.begin(ctx, reqCtx, mgr, sink, "Processing with "+name+"...")
	defer stop()
	if err != nil {
		return err
	}

	if e.llm == nil {
		return e.executeWithoutLLM(ctx, mgr, sink, text, ectx)
	}

	req := e.buildRequest(ctx, ectx.ContextID, text, files)
	var result *model.Response
	err = e.cfg.handler.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.generate(ctx, req, sink)
		return err
	})
	if err != nil {
		if rpcerror.IsTimeout(err) {
			logger.Error("Model request timed out", rpcerror.LogAttrs(err, ectx)...)
			return mgr.FailTask(ctx, "Request timed out")
		}
		logger.Error("Model request failed", rpcerror.LogAttrs(err, ectx)...)
		return mgr.FailTask(ctx, "Error: "+err.Error())
	}
	e.recordUsage(ctx, result)

	reply := strings.TrimSpace(result.TextContent())
	if reply == "" && !result.HasToolCalls() {
		if err := sink.UpdateStatus(ctx, task.StateWorking, sink.NewAgentMessage(a2a.TextPart{Text: NoResponse}), false); err != nil {
			return err
		}
		return mgr.CompleteTask(ctx, NoResponse)
	}

	if reply != "" {
		if err := sink.AddArtifact(ctx, ArtifactName, a2a.TextPart{Text: reply}); err != nil {
			return err
		}
		if err := sink.CloseArtifact(ctx); err != nil {
			return err
		}
	}
	if result.HasToolCalls() {
		if err := e.reportToolCalls(ctx, sink, result.ToolCalls); err != nil {
			return err
		}
	}

	e.remember(ectx.ContextID, text, reply)
	logger.Info("Request completed", "chars", len(reply), "tool_calls", len(result.ToolCalls))
	return mgr.CompleteTask(ctx, "")
}

func (e *LLMExecutor) executeWithoutLLM(ctx context.Context, mgr *task.Manager, sink Sink, text string, ectx rpcerror.Context) error {
	reply := fmt.Sprintf("Received: %s (LLM not configured)", text)
	if p, ok := e.agent.(MessageProcessor); ok {
		out, err := p.ProcessMessage(ctx, text)
		if err != nil {
			e.cfg.logger.Error("Message processing failed", rpcerror.LogAttrs(err, ectx)...)
			return mgr.FailTask(ctx, "Error: "+err.Error())
		}
		reply = out
	}
	if strings.TrimSpace(reply) == "" {
		reply = NoResponse
	}
	if err := sink.UpdateStatus(ctx, task.StateWorking, sink.NewAgentMessage(a2a.TextPart{Text: reply}), false); err != nil {
		return err
	}
	return mgr.CompleteTask(ctx, "Task completed")
}

// buildRequest assembles the model request from the session history and
// the incoming text plus any extracted documents.
func (e *LLMExecutor) buildRequest(ctx context.Context, contextID, text string, files []a2a.FilePart) *model.Request {
	req := &model.Request{
		SystemInstruction: e.agent.Instruction(),
		Tools:             e.agent.Tools(),
	}

	if e.cfg.sessions != nil {
		for _, m := range e.cfg.sessions.History(contextID, e.cfg.historyTokens) {
			role := a2a.MessageRoleUser
			if m.Role == session.RoleAgent {
				role = a2a.MessageRoleAgent
			}
			req.Messages = append(req.Messages, a2a.NewMessage(role, a2a.TextPart{Text: m.Content}))
		}
	}

	var sb strings.Builder
	sb.WriteString(text)
	var passthrough []a2a.Part
	for _, fp := range files {
		name, mimeType, _, data, err := message.FileInfo(fp)
		if err != nil || data == nil {
			passthrough = append(passthrough, fp)
			continue
		}
		doc, err := document.Extract(ctx, name, mimeType, data)
		if err != nil {
			if !document.IsUnsupported(err) {
				e.cfg.logger.Warn("Document extraction failed", "file", name, "error", err)
			}
			passthrough = append(passthrough, fp)
			continue
		}
		fmt.Fprintf(&sb, "\n\n--- Document: %s ---\n%s", name, doc.Text)
	}

	parts := []a2a.Part{a2a.TextPart{Text: strings.TrimSpace(sb.String())}}
	parts = append(parts, passthrough...)
	req.Messages = append(req.Messages, a2a.NewMessage(a2a.MessageRoleUser, parts...))
	return req
}

// generate streams one model call. Every partialEvery chunks the text so
// far is published as a working status. The aggregated final response
// takes precedence over the accumulated deltas.
func (e *LLMExecutor) generate(ctx context.Context, req *model.Request, sink Sink) (*model.Response, error) {
	var (
		acc    strings.Builder
		chunks int
		final  *model.Response
		calls  []model.ToolCall
		usage  *model.Usage
	)
	for resp, err := range e.llm.GenerateContent(ctx, req, true) {
		if err != nil {
			return nil, err
		}
		if resp == nil {
			continue
		}
		if resp.Usage != nil {
			usage = resp.Usage
		}
		if !resp.Partial {
			final = resp
			continue
		}
		calls = append(calls, resp.ToolCalls...)
		delta := resp.TextContent()
		if delta == "" {
			continue
		}
		acc.WriteString(delta)
		chunks++
		if chunks%partialEvery == 0 {
			msg := sink.NewAgentMessage(a2a.TextPart{Text: acc.String()})
			if err := sink.UpdateStatus(ctx, task.StateWorking, msg, false); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if final == nil {
		final = &model.Response{
			Content:      &model.Content{Role: a2a.MessageRoleAgent},
			TurnComplete: true,
			ToolCalls:    calls,
		}
		if acc.Len() > 0 {
			final.Content.Parts = []a2a.Part{a2a.TextPart{Text: acc.String()}}
		}
	}
	if final.Usage == nil {
		final.Usage = usage
	}
	return final, nil
}

func (e *LLMExecutor) reportToolCalls(ctx context.Context, sink Sink, calls []model.ToolCall) error {
	items := make([]any, len(calls))
	for i, c := range calls {
		items[i] = map[string]any{"id": c.ID, "name": c.Name, "arguments": c.Args}
	}
	part := a2a.DataPart{Data: map[string]any{ToolCallsArtifact: items}}
	msg := sink.NewAgentMessage(part)
	return sink.UpdateStatus(ctx, task.StateWorking, msg, false)
}

func (e *LLMExecutor) recordUsage(ctx context.Context, resp *model.Response) {
	if e.cfg.tokens == nil || resp == nil || resp.Usage == nil {
		return
	}
	e.cfg.tokens.RecordTokens(ctx, string(e.llm.Provider()), e.llm.Name(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}

func (e *LLMExecutor) remember(contextID, text, reply string) {
	if e.cfg.sessions == nil {
		return
	}
	e.cfg.sessions.GetOrCreate(contextID)
	if _, err := e.cfg.sessions.AddMessage(contextID, session.RoleUser, text, nil); err != nil {
		e.cfg.logger.Warn("Failed to store history", "context_id", contextID, "error", err)
		return
	}
	if reply != "" {
		_, _ = e.cfg.sessions.AddMessage(contextID, session.RoleAgent, reply, nil)
	}
}

// Cancel implements a2asrv.AgentExecutor.
func (e *LLMExecutor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return e.cfg.cancel(ctx, reqCtx, queue)
}

var _ a2asrv.AgentExecutor = (*LLMExecutor)(nil)
