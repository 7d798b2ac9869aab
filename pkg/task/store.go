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
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
)

// ListFilter narrows Store.List. Zero values match everything.
type ListFilter struct {
	ContextID string
	States    []a2a.TaskState
	Limit     int
}

func (f ListFilter) matches(t *a2a.Task) bool {
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if t.Status.State == s {
			return true
		}
	}
	return false
}

// Store persists tasks for the A2A request handler and for recovery.
type Store interface {
	a2asrv.TaskStore
	List(ctx context.Context, filter ListFilter) ([]*a2a.Task, error)
	Delete(ctx context.Context, id a2a.TaskID) error
	Close() error
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[a2a.TaskID][]byte
	updated map[a2a.TaskID]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[a2a.TaskID][]byte),
		updated: make(map[a2a.TaskID]time.Time),
	}
}

// Save stores a copy of t.
func (s *MemoryStore) Save(_ context.Context, t *a2a.Task) error {
	if t == nil {
		return fmt.Errorf("task is required")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}
	s.mu.Lock()
	s.tasks[t.ID] = raw
	s.updated[t.ID] = time.Now()
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored task or a2a.ErrTaskNotFound.
func (s *MemoryStore) Get(_ context.Context, id a2a.TaskID) (*a2a.Task, error) {
	s.mu.RLock()
	raw, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, a2a.ErrTaskNotFound
	}
	return decodeTask(raw)
}

// List returns matching tasks, most recently saved first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*a2a.Task, error) {
	s.mu.RLock()
	type entry struct {
		raw []byte
		at  time.Time
	}
	entries := make([]entry, 0, len(s.tasks))
	for id, raw := range s.tasks {
		entries = append(entries, entry{raw: raw, at: s.updated[id]})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })

	var out []*a2a.Task
	for _, e := range entries {
		t, err := decodeTask(e.raw)
		if err != nil {
			return nil, err
		}
		if !filter.matches(t) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id a2a.TaskID) error {
	s.mu.Lock()
	delete(s.tasks, id)
	delete(s.updated, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func decodeTask(raw []byte) (*a2a.Task, error) {
	var t a2a.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &t, nil
}

var _ Store = (*MemoryStore)(nil)
