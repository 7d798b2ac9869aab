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

// Package config loads the a2akit server configuration.
//
// A config document is YAML (or JSON) read from a provider: a local file,
// a consul or etcd key, or a zookeeper node. Values may reference the
// environment as ${VAR}, ${VAR:-default} or $VAR. After decoding, the
// process environment overrides the file for the usual deployment knobs
// (PORT, HOST, AGENT_*, A2A_*, LOG_*), then defaults are applied and the
// result is validated.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/a2akit/pkg/auth"
	"github.com/kadirpekel/a2akit/pkg/compliance"
	"github.com/kadirpekel/a2akit/pkg/logger"
	"github.com/kadirpekel/a2akit/pkg/model"
	"github.com/kadirpekel/a2akit/pkg/observability"
	"github.com/kadirpekel/a2akit/pkg/ratelimit"
	"github.com/kadirpekel/a2akit/pkg/registry"
	"github.com/kadirpekel/a2akit/pkg/resilience"
	"github.com/kadirpekel/a2akit/pkg/session"
	"github.com/kadirpekel/a2akit/pkg/task"
)

// Defaults.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultShutdownTimeout = 5 * time.Second
	DefaultHistoryTokens   = 4000

	StoreMemory = "memory"
	StoreSQL    = "sql"
)

// Config is the root configuration document.
type Config struct {
	Agent         AgentConfig          `yaml:"agent" json:"agent"`
	Server        ServerConfig         `yaml:"server,omitempty" json:"server,omitempty"`
	Task          TaskConfig           `yaml:"task,omitempty" json:"task,omitempty"`
	Database      DatabaseConfig       `yaml:"database,omitempty" json:"database,omitempty"`
	Resilience    ResilienceConfig     `yaml:"resilience,omitempty" json:"resilience,omitempty"`
	LLM           LLMConfig            `yaml:"llm,omitempty" json:"llm,omitempty"`
	Session       SessionConfig        `yaml:"session,omitempty" json:"session,omitempty"`
	Registry      RegistryConfig       `yaml:"registry,omitempty" json:"registry,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty" json:"logger,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// AgentConfig describes the agent card.
type AgentConfig struct {
	Name            string        `yaml:"name" json:"name" jsonschema:"title=Agent Name"`
	Description     string        `yaml:"description,omitempty" json:"description,omitempty"`
	Version         string        `yaml:"version,omitempty" json:"version,omitempty"`
	URL             string        `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"description=Public URL; detected from the platform when empty"`
	Instruction     string        `yaml:"instruction,omitempty" json:"instruction,omitempty" jsonschema:"description=System instruction for the LLM agent"`
	Streaming       *bool         `yaml:"streaming,omitempty" json:"streaming,omitempty" jsonschema:"default=true"`
	Organization    string        `yaml:"organization,omitempty" json:"organization,omitempty"`
	OrganizationURL string        `yaml:"organization_url,omitempty" json:"organization_url,omitempty"`
	IconURL         string        `yaml:"icon_url,omitempty" json:"icon_url,omitempty"`
	DocsURL         string        `yaml:"docs_url,omitempty" json:"docs_url,omitempty"`
	InputModes      []string      `yaml:"input_modes,omitempty" json:"input_modes,omitempty"`
	OutputModes     []string      `yaml:"output_modes,omitempty" json:"output_modes,omitempty"`
	Skills          []SkillConfig `yaml:"skills,omitempty" json:"skills,omitempty"`
}

// SkillConfig is one advertised skill.
type SkillConfig struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"default=0.0.0.0"`
	Port            int           `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535,default=8000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
	// Debug mounts /debug/tasks/{id}.
	Debug     bool             `yaml:"debug,omitempty" json:"debug,omitempty"`
	CORS      CORSConfig       `yaml:"cors,omitempty" json:"cors,omitempty"`
	Auth      auth.Config      `yaml:"auth,omitempty" json:"auth,omitempty"`
	RateLimit ratelimit.Config `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	Enabled          *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"default=true"`
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
	AllowedMethods   []string `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty"`
	AllowedHeaders   []string `yaml:"allowed_headers,omitempty" json:"allowed_headers,omitempty"`
	AllowCredentials bool     `yaml:"allow_credentials,omitempty" json:"allow_credentials,omitempty"`
	MaxAge           int      `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

// TaskConfig configures task execution and storage.
type TaskConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty" json:"heartbeat_interval,omitempty"`
	// Store is "memory" or "sql". SQL uses the database section.
	Store string `yaml:"store,omitempty" json:"store,omitempty" jsonschema:"enum=memory,enum=sql,default=memory"`
	// Recover fails tasks left working by a previous process.
	Recover *bool `yaml:"recover,omitempty" json:"recover,omitempty" jsonschema:"default=true"`
}

// ResilienceConfig selects the error handler layers.
type ResilienceConfig struct {
	EnableRetry          *bool         `yaml:"enable_retry,omitempty" json:"enable_retry,omitempty" jsonschema:"default=true"`
	EnableTimeout        *bool         `yaml:"enable_timeout,omitempty" json:"enable_timeout,omitempty" jsonschema:"default=true"`
	EnableCircuitBreaker *bool         `yaml:"enable_circuit_breaker,omitempty" json:"enable_circuit_breaker,omitempty" jsonschema:"default=false"`
	MaxRetries           int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	ChunkTimeout         time.Duration `yaml:"chunk_timeout,omitempty" json:"chunk_timeout,omitempty"`
	RaiseErrors          bool          `yaml:"raise_errors,omitempty" json:"raise_errors,omitempty"`
}

// LLMConfig pins the model provider. Empty fields fall back to detection
// from the provider API key variables.
type LLMConfig struct {
	Provider    string   `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=gemini,enum=openai,enum=anthropic"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
}

// SessionConfig sizes the conversation store.
type SessionConfig struct {
	MaxSessions     int           `yaml:"max_sessions,omitempty" json:"max_sessions,omitempty"`
	MaxMessages     int           `yaml:"max_messages,omitempty" json:"max_messages,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" json:"cleanup_interval,omitempty"`
	// HistoryTokens bounds the history prepended to model requests.
	HistoryTokens int `yaml:"history_tokens,omitempty" json:"history_tokens,omitempty"`
	// TokenModel selects the tiktoken encoding used for counting.
	TokenModel string `yaml:"token_model,omitempty" json:"token_model,omitempty"`
}

// RegistryConfig locates the agent registry file.
type RegistryConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LoggerConfig configures pkg/logger.
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=simple,enum=verbose,enum=json,default=simple"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences p, or returns def when p is nil.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Agent.SetDefaults()
	c.Server.SetDefaults()
	c.Task.SetDefaults()
	if c.Task.Store == StoreSQL {
		c.Database.SetDefaults()
	}
	c.Resilience.SetDefaults()
	c.Session.SetDefaults()
	c.Registry.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate returns the first error found.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Task.Validate(); err != nil {
		return fmt.Errorf("task: %w", err)
	}
	if c.Task.Store == StoreSQL {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Resilience.Validate(); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

func (c *AgentConfig) SetDefaults() {
	if c.Streaming == nil {
		c.Streaming = BoolPtr(true)
	}
}

func (c *AgentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	for i, s := range c.Skills {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("skills[%d]: id and name are required", i)
		}
	}
	return nil
}

// CardOptions converts the section for compliance.NewCard.
func (c *AgentConfig) CardOptions() compliance.CardOptions {
	skills := make([]a2a.AgentSkill, 0, len(c.Skills))
	for _, s := range c.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Examples:    s.Examples,
		})
	}
	return compliance.CardOptions{
		Name:            c.Name,
		Description:     c.Description,
		Version:         c.Version,
		URL:             c.URL,
		Skills:          skills,
		Streaming:       BoolValue(c.Streaming, true),
		Organization:    c.Organization,
		OrganizationURL: c.OrganizationURL,
		IconURL:         c.IconURL,
		DocsURL:         c.DocsURL,
		InputModes:      c.InputModes,
		OutputModes:     c.OutputModes,
	}
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	c.CORS.SetDefaults()
	c.Auth.SetDefaults()
	c.RateLimit.SetDefaults()
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *CORSConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization", "A2A-Extensions"}
	}
}

func (c *TaskConfig) SetDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = task.DefaultHeartbeatInterval
	}
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.Recover == nil {
		c.Recover = BoolPtr(true)
	}
}

func (c *TaskConfig) Validate() error {
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval must not be negative")
	}
	if c.Store != StoreMemory && c.Store != StoreSQL {
		return fmt.Errorf("invalid store %q (valid: memory, sql)", c.Store)
	}
	return nil
}

func (c *ResilienceConfig) SetDefaults() {
	def := resilience.DefaultOptions()
	if c.EnableRetry == nil {
		c.EnableRetry = BoolPtr(def.EnableRetry)
	}
	if c.EnableTimeout == nil {
		c.EnableTimeout = BoolPtr(def.EnableTimeout)
	}
	if c.EnableCircuitBreaker == nil {
		c.EnableCircuitBreaker = BoolPtr(def.EnableCircuitBreaker)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.ChunkTimeout == 0 {
		c.ChunkTimeout = def.Timeout
	}
}

func (c *ResilienceConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.ChunkTimeout < 0 {
		return fmt.Errorf("chunk_timeout must not be negative")
	}
	return nil
}

// Options converts the section for resilience.NewErrorHandler.
func (c *ResilienceConfig) Options() resilience.Options {
	return resilience.Options{
		EnableRetry:          BoolValue(c.EnableRetry, true),
		EnableTimeout:        BoolValue(c.EnableTimeout, true),
		EnableCircuitBreaker: BoolValue(c.EnableCircuitBreaker, false),
		MaxRetries:           c.MaxRetries,
		Timeout:              c.ChunkTimeout,
		RaiseErrors:          c.RaiseErrors,
	}
}

func (c *LLMConfig) Validate() error {
	switch model.Provider(c.Provider) {
	case "", model.ProviderGemini, model.ProviderOpenAI, model.ProviderAnthropic:
	default:
		return fmt.Errorf("invalid provider %q (valid: gemini, openai, anthropic)", c.Provider)
	}
	if c.APIKey != "" && c.Provider == "" {
		return fmt.Errorf("provider is required when api_key is set")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// Explicit reports whether the section fully selects a model without
// looking at the environment.
func (c *LLMConfig) Explicit() bool {
	return c.Provider != "" && c.APIKey != ""
}

// Selection is the model choice for an explicit section. An empty model
// gets the provider default.
func (c *LLMConfig) Selection() model.Selection {
	name := c.Model
	if name == "" {
		switch model.Provider(c.Provider) {
		case model.ProviderGemini:
			name = model.DefaultGeminiModel
		case model.ProviderOpenAI:
			name = model.DefaultOpenAIModel
		case model.ProviderAnthropic:
			name = model.DefaultAnthropicModel
		}
	}
	return model.Selection{Provider: model.Provider(c.Provider), Model: name, APIKey: c.APIKey}
}

// Getenv layers the section over base for model.Detect: provider becomes
// LLM_PROVIDER and model the provider's *_MODEL variable.
func (c *LLMConfig) Getenv(base func(string) string) func(string) string {
	modelVar := map[string]string{
		string(model.ProviderGemini):    "GEMINI_MODEL",
		string(model.ProviderOpenAI):    "OPENAI_MODEL",
		string(model.ProviderAnthropic): "ANTHROPIC_MODEL",
	}[c.Provider]
	return func(key string) string {
		switch {
		case key == "LLM_PROVIDER" && c.Provider != "":
			return c.Provider
		case key == modelVar && c.Model != "":
			return c.Model
		}
		return base(key)
	}
}

func (c *SessionConfig) SetDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = session.DefaultMaxSessions
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = session.DefaultMaxMessages
	}
	if c.Timeout == 0 {
		c.Timeout = session.DefaultTimeout
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = session.DefaultCleanupInterval
	}
	if c.HistoryTokens == 0 {
		c.HistoryTokens = DefaultHistoryTokens
	}
}

func (c *SessionConfig) Validate() error {
	if c.MaxSessions < 0 || c.MaxMessages < 0 || c.HistoryTokens < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// Options converts the section for session.NewManager.
func (c *SessionConfig) Options(l *slog.Logger) session.Options {
	return session.Options{
		MaxSessions:     c.MaxSessions,
		MaxMessages:     c.MaxMessages,
		Timeout:         c.Timeout,
		CleanupInterval: c.CleanupInterval,
		Logger:          l,
		Counter:         session.NewCounter(c.TokenModel),
	}
}

func (c *RegistryConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = registry.DefaultPath
	}
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	if !logger.ValidLevel(c.Level) {
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "simple", "verbose", "json":
	default:
		return fmt.Errorf("invalid format %q (valid: simple, verbose, json)", c.Format)
	}
	return nil
}
