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
	"log/slog"
	"sync"
	"time"
)

// HeartbeatMonitor sends heartbeats for many tasks from one goroutine.
// Tasks that reach a terminal state are dropped on the next tick.
type HeartbeatMonitor struct {
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Manager

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeatMonitor creates a monitor. A non-positive interval selects
// DefaultHeartbeatInterval.
func NewHeartbeatMonitor(interval time.Duration, logger *slog.Logger) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatMonitor{
		interval: interval,
		logger:   logger,
		tasks:    make(map[string]*Manager),
	}
}

func (h *HeartbeatMonitor) Add(m *Manager) {
	h.mu.Lock()
	h.tasks[m.TaskID()] = m
	h.mu.Unlock()
	h.logger.Debug("Added task to heartbeat monitor", "task_id", m.TaskID())
}

func (h *HeartbeatMonitor) Remove(taskID string) {
	h.mu.Lock()
	_, ok := h.tasks[taskID]
	delete(h.tasks, taskID)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("Removed task from heartbeat monitor", "task_id", taskID)
	}
}

// Len returns the number of monitored tasks.
func (h *HeartbeatMonitor) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

// Start launches the monitor loop. It is a no-op if already running.
func (h *HeartbeatMonitor) Start(ctx context.Context) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(runCtx, h.done)
	h.logger.Info("Heartbeat monitor started", "interval", h.interval)
}

// Run blocks until ctx is cancelled. It suits errgroup-style supervisors.
func (h *HeartbeatMonitor) Run(ctx context.Context) error {
	h.Start(ctx)
	<-ctx.Done()
	h.Stop()
	return nil
}

// Stop halts the loop and waits for it to exit.
func (h *HeartbeatMonitor) Stop() {
	h.runMu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Info("Heartbeat monitor stopped")
}

func (h *HeartbeatMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick performs one monitoring pass.
func (h *HeartbeatMonitor) Tick(ctx context.Context) {
	h.mu.Lock()
	snapshot := make([]*Manager, 0, len(h.tasks))
	for _, m := range h.tasks {
		snapshot = append(snapshot, m)
	}
	h.mu.Unlock()

	for _, m := range snapshot {
		switch st := m.State(); {
		case st == StateWorking:
			if err := m.SendHeartbeat(ctx); err != nil {
				h.logger.Error("Heartbeat failed", "task_id", m.TaskID(), "error", err)
			}
		case st.IsTerminal():
			h.Remove(m.TaskID())
		}
	}
}
