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

package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirpekel/a2akit/pkg/task"
)

// NewTaskStore builds the task store selected by cfg.Task.Store. The
// returned close function releases the store and, for SQL, the
// connection.
//
//	task:
//	  store: sql
//	database:
//	  driver: sqlite
//	  database: ./.a2akit/tasks.db
func NewTaskStore(ctx context.Context, cfg *Config) (task.Store, func() error, error) {
	switch cfg.Task.Store {
	case StoreMemory, "":
		s := task.NewMemoryStore()
		return s, s.Close, nil
	case StoreSQL:
		db, err := cfg.Database.Open(ctx)
		if err != nil {
			return nil, nil, err
		}
		s, err := task.NewSQLStore(ctx, db, cfg.Database.Dialect())
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to create SQL task store: %w", err)
		}
		return s, func() error { return errors.Join(s.Close(), db.Close()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown task store %q", cfg.Task.Store)
	}
}
