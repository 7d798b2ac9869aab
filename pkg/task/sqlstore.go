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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS a2a_tasks (
    task_id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    state VARCHAR(32) NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`
	createContextIndexSQL = `CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context_id ON a2a_tasks(context_id)`
	createStateIndexSQL   = `CREATE INDEX IF NOT EXISTS idx_a2a_tasks_state ON a2a_tasks(state)`

	// MySQL has no IF NOT EXISTS for indexes.
	createContextIndexMySQL = `CREATE INDEX idx_a2a_tasks_context_id ON a2a_tasks(context_id)`
	createStateIndexMySQL   = `CREATE INDEX idx_a2a_tasks_state ON a2a_tasks(state)`
)

// SQLStore persists tasks in postgres, mysql or sqlite. The whole task is
// kept as JSON; context and state are duplicated into columns for listing.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates the schema if needed and returns a store. The
// connection is shared and is not closed by Close.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "sqlite3":
		dialect = "sqlite"
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createTasksTableSQL); err != nil {
		return fmt.Errorf("failed to create a2a_tasks table: %w", err)
	}

	indexes := []string{createContextIndexSQL, createStateIndexSQL}
	if s.dialect == "mysql" {
		indexes = []string{createContextIndexMySQL, createStateIndexMySQL}
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// Duplicate key name (1061) means the index already exists.
			if s.dialect == "mysql" && strings.Contains(err.Error(), "1061") {
				continue
			}
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) upsertSQL() string {
	switch s.dialect {
	case "mysql":
		return `
INSERT INTO a2a_tasks (task_id, context_id, state, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    context_id = VALUES(context_id),
    state = VALUES(state),
    payload = VALUES(payload),
    updated_at = VALUES(updated_at)`
	default:
		// postgres and sqlite 3.24+ share the ON CONFLICT form.
		return s.rebind(`
INSERT INTO a2a_tasks (task_id, context_id, state, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (task_id) DO UPDATE SET
    context_id = excluded.context_id,
    state = excluded.state,
    payload = excluded.payload,
    updated_at = excluded.updated_at`)
	}
}

// Save upserts t. created_at is preserved across updates.
func (s *SQLStore) Save(ctx context.Context, t *a2a.Task) error {
	if t == nil {
		return fmt.Errorf("task is required")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.upsertSQL(),
		string(t.ID), t.ContextID, string(t.Status.State), string(payload), now, now)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Get returns the task or a2a.ErrTaskNotFound.
func (s *SQLStore) Get(ctx context.Context, id a2a.TaskID) (*a2a.Task, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM a2a_tasks WHERE task_id = ?`), string(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		slog.Error("Task store query failed", "task_id", id, "error", err)
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return decodeTask([]byte(payload))
}

// List returns matching tasks ordered by most recent update.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*a2a.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.ContextID != "" {
		where = append(where, "context_id = ?")
		args = append(args, filter.ContextID)
	}
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, st := range filter.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT payload FROM a2a_tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*a2a.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t, err := decodeTask([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id a2a.TaskID) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM a2a_tasks WHERE task_id = ?`), string(id)); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// Close is a no-op; the pool owns the connection.
func (s *SQLStore) Close() error {
	return nil
}

var _ Store = (*SQLStore)(nil)
