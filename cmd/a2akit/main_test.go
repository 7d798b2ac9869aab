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
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2akit/examples/echo"
	"github.com/kadirpekel/a2akit/pkg/compliance"
	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/executor"
	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/ratelimit"
	"github.com/kadirpekel/a2akit/pkg/registry"
	"github.com/kadirpekel/a2akit/pkg/remote"
	"github.com/kadirpekel/a2akit/pkg/server"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("a2akit"), kong.Vars{"registry_path": registry.DefaultPath})
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestCLI_Parse(t *testing.T) {
	cli, ctx := parse(t, "serve", "--agent", "echo", "--port", "9100", "--debug")
	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, "echo", cli.Serve.Agent)
	assert.Equal(t, 9100, cli.Serve.Port)
	assert.True(t, cli.Serve.Debug)
	assert.Equal(t, "file", cli.ConfigType)
	assert.Equal(t, []string{".env"}, cli.EnvFile)

	cli, ctx = parse(t, "call", "http://localhost:8000", "hello", "--stream")
	assert.Equal(t, "call <target> <text>", ctx.Command())
	assert.Equal(t, "hello", cli.Call.Text)
	assert.True(t, cli.Call.Stream)
	assert.Equal(t, registry.DefaultPath, cli.Call.Registry)

	cli, _ = parse(t, "--config", "a2akit/config", "--config-type", "consul", "--config-endpoints", "a:8500,b:8500", "validate")
	assert.Equal(t, "consul", cli.ConfigType)
	assert.Equal(t, []string{"a:8500", "b:8500"}, cli.ConfigEndpoints)
	assert.Equal(t, "compact", cli.Validate.Format)

	var bad CLI
	parser, err := kong.New(&bad, kong.Vars{"registry_path": registry.DefaultPath})
	require.NoError(t, err)
	_, err = parser.Parse([]string{"serve", "--agent", "robot"})
	assert.Error(t, err)
}

func TestResolveLogSettings(t *testing.T) {
	fromCfg := &config.LoggerConfig{Level: "warn", Format: "json", File: "cfg.log"}

	s := resolveLogSettings(&CLI{}, nil, envMap(nil))
	assert.Equal(t, logSettings{level: DefaultLogLevel, format: DefaultLogFormat}, s)

	s = resolveLogSettings(&CLI{}, fromCfg, envMap(nil))
	assert.Equal(t, logSettings{level: "warn", file: "cfg.log", format: "json"}, s)

	s = resolveLogSettings(&CLI{}, fromCfg, envMap(map[string]string{LogLevelEnvVar: "error"}))
	assert.Equal(t, "error", s.level)

	s = resolveLogSettings(&CLI{LogLevel: "debug", LogFormat: "verbose"}, fromCfg, envMap(map[string]string{LogLevelEnvVar: "error"}))
	assert.Equal(t, "debug", s.level)
	assert.Equal(t, "verbose", s.format)
	assert.Equal(t, "cfg.log", s.file)
}

func TestCLI_InitLoggerRejectsBadLevel(t *testing.T) {
	cli := &CLI{LogLevel: "loud"}
	assert.ErrorContains(t, cli.initLogger(nil), "invalid log level")
}

func TestCLI_InitLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2akit.log")
	cli := &CLI{LogLevel: "info", LogFile: path}
	require.NoError(t, cli.initLogger(nil))
	require.NotNil(t, cli.logCleanup)
	cli.closeLog()
	assert.Nil(t, cli.logCleanup)
	_, err := os.Stat(path)
	assert.NoError(t, err)

	cli.LogFile = ""
	require.NoError(t, cli.initLogger(nil))
}

func TestWithDefaultEnv(t *testing.T) {
	getenv := withDefaultEnv(envMap(map[string]string{"AGENT_NAME": "set"}), map[string]string{"AGENT_NAME": "fallback", "PORT": "9000"})
	assert.Equal(t, "set", getenv("AGENT_NAME"))
	assert.Equal(t, "9000", getenv("PORT"))
	assert.Empty(t, getenv("HOST"))
}

func TestCLI_LoadConfig(t *testing.T) {
	t.Setenv("AGENT_NAME", "")
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: from-file\nserver:\n  port: 9200\n"), 0o644))

	cli := &CLI{Config: path, ConfigType: "file"}
	cfg, loader, err := cli.loadConfig(context.Background(), "unused")
	require.NoError(t, err)
	require.NotNil(t, loader)
	defer loader.Close()
	assert.Equal(t, "from-file", cfg.Agent.Name)
	assert.Equal(t, 9200, cfg.Server.Port)

	cli = &CLI{Config: path, ConfigType: "s3"}
	_, _, err = cli.loadConfig(context.Background(), "unused")
	assert.Error(t, err)
}

func TestCLI_LoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AGENT_NAME", "")

	cfg, loader, err := (&CLI{ConfigType: "file"}).loadConfig(context.Background(), "Echo Agent")
	require.NoError(t, err)
	assert.Nil(t, loader)
	assert.Equal(t, "Echo Agent", cfg.Agent.Name)

	require.NoError(t, os.WriteFile(DefaultConfigFile, []byte("agent:\n  name: local\n"), 0o644))
	cfg, loader, err = (&CLI{ConfigType: "file"}).loadConfig(context.Background(), "Echo Agent")
	require.NoError(t, err)
	require.NotNil(t, loader)
	defer loader.Close()
	assert.Equal(t, "local", cfg.Agent.Name)
}

func TestServeCmd_Apply(t *testing.T) {
	cfg := &config.Config{Agent: config.AgentConfig{Name: "a"}}
	cfg.SetDefaults()

	(&ServeCmd{Agent: agentLLM, Port: 9300, Host: "127.0.0.1", Debug: true}).apply(cfg)
	assert.Equal(t, "127.0.0.1:9300", cfg.Server.Addr())
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, DefaultInstruction, cfg.Agent.Instruction)

	kept := &config.Config{Agent: config.AgentConfig{Name: "a", Instruction: "Be terse."}}
	kept.SetDefaults()
	(&ServeCmd{Agent: agentLLM}).apply(kept)
	assert.Equal(t, config.DefaultPort, kept.Server.Port)
	assert.Equal(t, "Be terse.", kept.Agent.Instruction)
}

func TestCardOptions(t *testing.T) {
	cfg := &config.Config{Agent: config.AgentConfig{Name: "a"}, Server: config.ServerConfig{Port: 9400}}

	opts := cardOptions(cfg, envMap(nil))
	assert.Equal(t, "http://localhost:9400/", opts.URL)

	opts = cardOptions(cfg, envMap(map[string]string{"HU_APP_URL": "https://apps.healthuniverse.com/abc-def-ghi"}))
	assert.Empty(t, opts.URL, "platform URL is resolved by the card builder")

	cfg.Agent.URL = "https://agent.example/"
	assert.Equal(t, "https://agent.example/", cardOptions(cfg, envMap(nil)).URL)
}

func TestNewLLM_NoKey(t *testing.T) {
	_, err := newLLM(context.Background(), &config.LLMConfig{}, envMap(nil))
	assert.ErrorIs(t, err, model.ErrNoAPIKey)
}

func TestPrintReport(t *testing.T) {
	report := validationReport{
		Card:        compliance.Result{Errors: []string{"AgentCard.url is required"}, Warnings: []string{}},
		Environment: compliance.Result{Compliant: true, Errors: []string{}, Warnings: []string{"AGENT_ORG not set"}},
		Platform:    "local",
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, "compact", report))
	assert.Contains(t, buf.String(), "1 compliance error(s)")
	assert.Contains(t, buf.String(), "error: AgentCard.url is required")

	buf.Reset()
	require.NoError(t, printReport(&buf, "verbose", report))
	assert.Contains(t, buf.String(), "[environment] warning: AGENT_ORG not set")

	buf.Reset()
	require.NoError(t, printReport(&buf, "json", report))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["compliant"])
	assert.Equal(t, "local", decoded["platform"])
}

func TestPrintBanner(t *testing.T) {
	cfg := &config.Config{Agent: config.AgentConfig{Name: "echo"}}
	cfg.SetDefaults()
	cfg.Server.Debug = true
	cfg.Server.RateLimit = ratelimit.Config{Enabled: true, Limits: []ratelimit.Rule{{Window: ratelimit.WindowMinute, Limit: 60}}}

	var buf bytes.Buffer
	printBanner(&buf, cfg, "http://localhost:8000/", "/metrics")
	out := buf.String()
	assert.Contains(t, out, "http://localhost:8000"+server.AgentCardPath)
	assert.Contains(t, out, "http://localhost:8000/metrics")
	assert.Contains(t, out, "/debug/tasks/{id}")
	assert.Contains(t, out, "in-memory")
	assert.Contains(t, out, "60/minute per caller")
}

func TestCallCmd(t *testing.T) {
	ts := httptest.NewUnstartedServer(nil)
	card := compliance.NewCard(compliance.CardOptions{
		Name:        "echo",
		Description: "Echoes its input",
		URL:         "http://" + ts.Listener.Addr().String() + "/",
		Streaming:   true,
	})
	agent := echo.New()
	cfg := &config.ServerConfig{}
	cfg.SetDefaults()
	srv := server.NewHTTPServer(cfg, card, executor.NewBase("echo", agent))
	ts.Config.Handler = srv.Handler()
	ts.Start()
	defer ts.Close()

	caller := remote.NewCaller()
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, (&CallCmd{Target: ts.URL, Text: "hi"}).call(ctx, &buf, caller, nil))
	assert.Equal(t, "Echo: hi\n", buf.String())

	buf.Reset()
	require.NoError(t, (&CallCmd{Target: ts.URL, Text: "streamed", Stream: true}).call(ctx, &buf, caller, nil))
	assert.Contains(t, buf.String(), "Echo: streamed")

	buf.Reset()
	require.NoError(t, (&CallCmd{Target: ts.URL, Text: `{"q": 1}`, JSON: true}).call(ctx, &buf, caller, nil))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.EqualValues(t, 1, out["q"], "the echoed object is decoded")

	err := (&CallCmd{Target: ts.URL, Text: "not json", JSON: true}).call(ctx, &buf, caller, nil)
	assert.ErrorContains(t, err, "not a JSON object")
}
