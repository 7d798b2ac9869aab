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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store keeps request counters per caller key and window. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the count of key in the window active at now and the
	// window end. Unknown or expired counters read as zero.
	Get(ctx context.Context, key string, w Window, now time.Time) (int64, time.Time, error)

	// Increment adds n and returns the new count and window end. An
	// expired window restarts at n.
	Increment(ctx context.Context, key string, w Window, n int64, now time.Time) (int64, time.Time, error)

	// DeleteExpired drops counters whose window ended before t.
	DeleteExpired(ctx context.Context, t time.Time) (int, error)

	Close() error
}

type counterKey struct {
	key    string
	window Window
}

type counter struct {
	count int64
	ends  time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[counterKey]*counter
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[counterKey]*counter)}
}

func (s *MemoryStore) Get(_ context.Context, key string, w Window, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[counterKey{key, w}]
	if !ok || !c.ends.After(now) {
		return 0, now.Add(w.Duration()), nil
	}
	return c.count, c.ends, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, w Window, n int64, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{key, w}
	c, ok := s.data[k]
	if !ok || !c.ends.After(now) {
		c = &counter{ends: now.Add(w.Duration())}
		s.data[k] = c
	}
	c.count += n
	return c.count, c.ends, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.data {
		if c.ends.Before(t) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
	return nil
}
