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

package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
)

// Updater publishes task events to the client.
type Updater interface {
	// UpdateStatus emits a status update. final marks the last event of
	// the execution.
	UpdateStatus(ctx context.Context, state State, msg *a2a.Message, final bool) error

	// AddArtifact emits artifact content. Calls after the first append to
	// the same artifact.
	AddArtifact(ctx context.Context, name string, parts ...a2a.Part) error

	// NewAgentMessage builds an agent-authored message bound to the task.
	NewAgentMessage(parts ...a2a.Part) *a2a.Message
}

// QueueUpdater writes events to an a2asrv event queue.
type QueueUpdater struct {
	reqCtx *a2asrv.RequestContext
	queue  eventqueue.Queue

	mu         sync.Mutex
	artifactID a2a.ArtifactID
}

// NewQueueUpdater creates an Updater for the request.
func NewQueueUpdater(reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) *QueueUpdater {
	return &QueueUpdater{reqCtx: reqCtx, queue: queue}
}

func (u *QueueUpdater) UpdateStatus(ctx context.Context, state State, msg *a2a.Message, final bool) error {
	event := a2a.NewStatusUpdateEvent(u.reqCtx, state.Wire(), msg)
	event.Final = final
	if err := u.queue.Write(ctx, event); err != nil {
		return fmt.Errorf("failed to write %s status: %w", state, err)
	}
	return nil
}

func (u *QueueUpdater) AddArtifact(ctx context.Context, name string, parts ...a2a.Part) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	var event *a2a.TaskArtifactUpdateEvent
	if u.artifactID == "" {
		event = a2a.NewArtifactEvent(u.reqCtx, parts...)
		event.Artifact.Name = name
		u.artifactID = event.Artifact.ID
	} else {
		event = a2a.NewArtifactUpdateEvent(u.reqCtx, u.artifactID, parts...)
	}
	if err := u.queue.Write(ctx, event); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// CloseArtifact marks the streamed artifact as complete. It is a no-op
// when no artifact was started.
func (u *QueueUpdater) CloseArtifact(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.artifactID == "" {
		return nil
	}
	event := a2a.NewArtifactUpdateEvent(u.reqCtx, u.artifactID)
	event.LastChunk = true
	return u.queue.Write(ctx, event)
}

func (u *QueueUpdater) NewAgentMessage(parts ...a2a.Part) *a2a.Message {
	return a2a.NewMessageForTask(a2a.MessageRoleAgent, u.reqCtx, parts...)
}

// WriteMessage sends a standalone agent message, used when the request
// is answered without creating a task.
func (u *QueueUpdater) WriteMessage(ctx context.Context, text string) error {
	return u.queue.Write(ctx, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text}))
}

var _ Updater = (*QueueUpdater)(nil)
