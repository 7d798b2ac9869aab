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
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// storeUpdater applies status updates directly to a persisted task. It
// is used when there is no live client to publish to.
type storeUpdater struct {
	store Store
	task  *a2a.Task
}

func (u *storeUpdater) UpdateStatus(ctx context.Context, state State, msg *a2a.Message, _ bool) error {
	u.task.Status.State = state.Wire()
	u.task.Status.Message = msg
	return u.store.Save(ctx, u.task)
}

func (u *storeUpdater) AddArtifact(ctx context.Context, name string, parts ...a2a.Part) error {
	art := &a2a.Artifact{ID: a2a.ArtifactID(uuid.NewString()), Name: name, Parts: parts}
	u.task.Artifacts = append(u.task.Artifacts, art)
	return u.store.Save(ctx, u.task)
}

func (u *storeUpdater) NewAgentMessage(parts ...a2a.Part) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleAgent, parts...)
}

// Recover fails every task a previous process left in the working state.
// It returns the number of tasks recovered.
func Recover(ctx context.Context, store Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tasks, err := store.List(ctx, ListFilter{States: []a2a.TaskState{a2a.TaskStateWorking}})
	if err != nil {
		return 0, fmt.Errorf("failed to list working tasks: %w", err)
	}
	if len(tasks) == 0 {
		logger.Debug("No interrupted tasks to recover")
		return 0, nil
	}

	logger.Info("Found interrupted tasks, starting recovery", "count", len(tasks))

	recovered, failed := 0, 0
	for _, t := range tasks {
		mgr := NewManager(string(t.ID), t.ContextID, &storeUpdater{store: store, task: t},
			WithInitialState(StateWorking), WithLogger(logger))
		ok, err := mgr.RecoverInterruptedTask(ctx)
		if err != nil {
			logger.Error("Failed to recover task", "task_id", t.ID, "error", err)
			failed++
			continue
		}
		if ok {
			recovered++
		}
	}

	logger.Info("Task recovery completed", "recovered", recovered, "failed", failed)
	return recovered, nil
}
