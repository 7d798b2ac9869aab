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
	"database/sql"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(id, contextID string, state a2a.TaskState) *a2a.Task {
	return &a2a.Task{
		ID:        a2a.TaskID(id),
		ContextID: contextID,
		Status:    a2a.TaskStatus{State: state},
	}
}

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(context.Background(), db, "sqlite3")
	require.NoError(t, err)
	return s
}

func storeImplementations(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, a2a.ErrTaskNotFound)

			task := newTask("t1", "c1", a2a.TaskStateSubmitted)
			require.NoError(t, s.Save(ctx, task))

			got, err := s.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "c1", got.ContextID)
			assert.Equal(t, a2a.TaskStateSubmitted, got.Status.State)

			// Stored copies are independent of the caller's value.
			task.Status.State = a2a.TaskStateWorking
			got, err = s.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateSubmitted, got.Status.State)

			require.NoError(t, s.Save(ctx, task))
			got, err = s.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateWorking, got.Status.State)

			require.NoError(t, s.Delete(ctx, "t1"))
			_, err = s.Get(ctx, "t1")
			assert.ErrorIs(t, err, a2a.ErrTaskNotFound)
		})
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, newTask("a", "c1", a2a.TaskStateWorking)))
			require.NoError(t, s.Save(ctx, newTask("b", "c1", a2a.TaskStateCompleted)))
			require.NoError(t, s.Save(ctx, newTask("c", "c2", a2a.TaskStateWorking)))

			all, err := s.List(ctx, ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			byContext, err := s.List(ctx, ListFilter{ContextID: "c1"})
			require.NoError(t, err)
			assert.Len(t, byContext, 2)

			working, err := s.List(ctx, ListFilter{States: []a2a.TaskState{a2a.TaskStateWorking}})
			require.NoError(t, err)
			ids := []string{}
			for _, w := range working {
				ids = append(ids, string(w.ID))
			}
			assert.ElementsMatch(t, []string{"a", "c"}, ids)

			limited, err := s.List(ctx, ListFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestNewSQLStore_RejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(context.Background(), db, "oracle")
	assert.Error(t, err)

	_, err = NewSQLStore(context.Background(), nil, "sqlite")
	assert.Error(t, err)
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", s.rebind("a = ? AND b IN (?, ?)"))

	s = &SQLStore{dialect: "mysql"}
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, newTask("w1", "c", a2a.TaskStateWorking)))
			require.NoError(t, s.Save(ctx, newTask("w2", "c", a2a.TaskStateWorking)))
			require.NoError(t, s.Save(ctx, newTask("done", "c", a2a.TaskStateCompleted)))

			n, err := Recover(ctx, s, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			got, err := s.Get(ctx, "w1")
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateFailed, got.Status.State)
			require.NotNil(t, got.Status.Message)
			assert.Equal(t, InterruptedMessage, messageText(got.Status.Message))

			got, err = s.Get(ctx, "done")
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)

			n, err = Recover(ctx, s, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestHeartbeatMonitor(t *testing.T) {
	ctx := context.Background()
	mon := NewHeartbeatMonitor(time.Hour, nil)

	workingUp := &fakeUpdater{}
	working := NewManager("w", "", workingUp, WithInitialState(StateWorking))
	done := NewManager("d", "", &fakeUpdater{}, WithInitialState(StateCompleted))
	waiting := NewManager("i", "", &fakeUpdater{}, WithInitialState(StateInputRequired))

	mon.Add(working)
	mon.Add(done)
	mon.Add(waiting)
	assert.Equal(t, 3, mon.Len())

	mon.Tick(ctx)

	assert.Equal(t, 2, mon.Len(), "terminal tasks are dropped")
	events := workingUp.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, HeartbeatMessage, events[0].text)

	mon.Remove("w")
	mon.Remove("i")
	assert.Zero(t, mon.Len())
}

func TestHeartbeatMonitor_StartStop(t *testing.T) {
	mon := NewHeartbeatMonitor(5*time.Millisecond, nil)
	up := &fakeUpdater{}
	mon.Add(NewManager("w", "", up, WithInitialState(StateWorking)))

	mon.Start(context.Background())
	mon.Start(context.Background())
	require.Eventually(t, func() bool { return len(up.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	mon.Stop()

	n := len(up.snapshot())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(up.snapshot()))
}
