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
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/rpcerror"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// NoResponse is sent when processing produced no text.
const NoResponse = "No response generated"

// Processor turns an input text into a reply.
type Processor interface {
	Process(ctx context.Context, text string) (string, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, text string) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// BaseExecutor runs a Processor as a task.
type BaseExecutor struct {
	name      string
	processor Processor
	cfg       *config
}

// NewBase creates an executor for the agent called name.
func NewBase(name string, p Processor, opts ...Option) *BaseExecutor {
	return &BaseExecutor{name: name, processor: p, cfg: newConfig(opts)}
}

// Name returns the agent name.
func (e *BaseExecutor) Name() string {
	return e.name
}

// Execute implements a2asrv.AgentExecutor.
func (e *BaseExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	sink := e.cfg.sinks(reqCtx, queue)
	logger := e.cfg.logger.With("agent", e.name, "task_id", string(reqCtx.TaskID))

	text := message.FirstText(reqCtx.Message)
	if strings.TrimSpace(text) == "" {
		return sink.WriteMessage(ctx, "Please provide input for "+e.name)
	}

	mgr := e.cfg.newManager(reqCtx, sink)
	stop, err := e.cfg.begin(ctx, reqCtx, mgr, sink, "Processing with "+e.name+"...")
	defer stop()
	if err != nil {
		return err
	}

	logger.Debug("Processing request", "request_id", NewRequestID(time.Now()))
	var reply string
	err = e.cfg.handler.Execute(ctx, func(ctx context.Context) error {
		out, err := e.processor.Process(ctx, text)
		reply = out
		return err
	})
	if err != nil {
		return e.fail(ctx, mgr, sink, err)
	}

	if strings.TrimSpace(reply) == "" {
		reply = NoResponse
	}
	if err := sink.UpdateStatus(ctx, task.StateWorking, sink.NewAgentMessage(a2a.TextPart{Text: reply}), false); err != nil {
		return err
	}
	return mgr.CompleteTask(ctx, "")
}

// fail reports err to the client and fails the task. Processing errors
// are not returned to the caller.
func (e *BaseExecutor) fail(ctx context.Context, mgr *task.Manager, sink Sink, err error) error {
	var reply, reason string
	switch {
	case errors.Is(err, rpcerror.ErrNotImplemented):
		reply, reason = "Feature not implemented: "+err.Error(), "Not implemented"
	case errors.Is(err, rpcerror.ErrInvalidArgument):
		reply, reason = "Invalid input: "+err.Error(), err.Error()
	default:
		reply, reason = "Error: "+err.Error(), err.Error()
	}

	ectx := rpcerror.Context{TaskID: mgr.TaskID(), ContextID: mgr.ContextID(), Agent: e.name, Method: "execute"}
	e.cfg.logger.Error("Processing failed", rpcerror.LogAttrs(err, ectx)...)

	if werr := sink.UpdateStatus(ctx, task.StateWorking, sink.NewAgentMessage(a2a.TextPart{Text: reply}), false); werr != nil {
		return werr
	}
	return mgr.FailTask(ctx, reason)
}

// Cancel implements a2asrv.AgentExecutor.
func (e *BaseExecutor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return e.cfg.cancel(ctx, reqCtx, queue)
}

var _ a2asrv.AgentExecutor = (*BaseExecutor)(nil)
