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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/kadirpekel/a2akit/pkg/logger"
	"github.com/kadirpekel/a2akit/pkg/remote"
	"github.com/kadirpekel/a2akit/pkg/resilience"
)

// CallCmd sends a message to a remote agent.
type CallCmd struct {
	Target    string        `arg:"" help:"Agent URL or registry name."`
	Text      string        `arg:"" help:"Message text, or a JSON object with --json."`
	Stream    bool          `short:"s" help:"Print the reply as it streams."`
	JSON      bool          `help:"Send the text as JSON data and print the decoded reply."`
	Registry  string        `help:"Agent registry file." env:"AGENT_REGISTRY_PATH" default:"${registry_path}"`
	ContextID string        `name:"context-id" help:"Continue the conversation with this context ID."`
	Timeout   time.Duration `help:"Overall timeout." default:"5m"`
}

func (c *CallCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	log := logger.GetLogger()
	caller := remote.NewCaller(
		remote.WithRegistryPath(c.Registry),
		remote.WithErrorHandler(resilience.NewErrorHandler(resilience.OptionsFromEnv(), log)),
		remote.WithLogger(log),
	)
	var opts []remote.CallOption
	if c.ContextID != "" {
		opts = append(opts, remote.WithContextID(c.ContextID))
	}
	return c.call(ctx, os.Stdout, caller, opts)
}

func (c *CallCmd) call(ctx context.Context, w io.Writer, caller *remote.Caller, opts []remote.CallOption) error {
	switch {
	case c.JSON:
		var data map[string]any
		if err := json.Unmarshal([]byte(c.Text), &data); err != nil {
			return fmt.Errorf("text is not a JSON object: %w", err)
		}
		out, err := caller.CallJSON(ctx, c.Target, data, opts...)
		if err != nil {
			return err
		}
		return writeJSON(w, out)
	case c.Stream:
		for chunk, err := range caller.Stream(ctx, c.Target, c.Text, opts...) {
			if err != nil {
				return err
			}
			fmt.Fprint(w, chunk)
		}
		fmt.Fprintln(w)
		return nil
	default:
		reply, err := caller.Call(ctx, c.Target, c.Text, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, reply)
		return nil
	}
}
