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

// Package registry maps agent names to base URLs using a JSON file:
//
//	{"agents": {"triage": {"url": "http://localhost:8001"}}}
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// DefaultPath is used when AGENT_REGISTRY_PATH is unset.
const DefaultPath = "config/agents.json"

var (
	// ErrNotFound is returned for names missing from the registry.
	ErrNotFound = errors.New("agent not found in registry")
	// ErrInvalid is returned for malformed registry files.
	ErrInvalid = fmt.Errorf("invalid registry: %w", rpcerror.ErrInvalidArgument)
)

// Entry describes one registered agent.
type Entry struct {
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type file struct {
	Agents map[string]Entry `json:"agents"`
}

// Registry is a loaded registry file.
type Registry struct {
	path string

	mu     sync.RWMutex
	agents map[string]Entry
}

// PathFromEnv returns AGENT_REGISTRY_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("AGENT_REGISTRY_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Registry{}
)

// Open returns the registry at path, loading it on first use. An empty
// path selects PathFromEnv.
func Open(path string) (*Registry, error) {
	if path == "" {
		path = PathFromEnv()
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if r, ok := cache[path]; ok {
		return r, nil
	}

	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	cache[path] = r
	return r, nil
}

// ClearCache forgets every registry loaded by Open.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(cache)
}

// Load reads the registry at path without caching. An empty agents object
// is rejected unless ALLOW_EMPTY_REGISTRY=1.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: registry not found: %s", ErrInvalid, path)
		}
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	agentsRaw, ok := raw["agents"]
	if !ok || !isObject(agentsRaw) {
		return nil, fmt.Errorf("%w: %s must include an 'agents' object", ErrInvalid, path)
	}

	var agents map[string]Entry
	if err := json.Unmarshal(agentsRaw, &agents); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if len(agents) == 0 && os.Getenv("ALLOW_EMPTY_REGISTRY") != "1" {
		return nil, fmt.Errorf("%w: %s has empty 'agents' object. Set ALLOW_EMPTY_REGISTRY=1 to allow", ErrInvalid, path)
	}

	for name, e := range agents {
		e.URL = strings.TrimRight(e.URL, "/")
		agents[name] = e
	}
	if agents == nil {
		agents = map[string]Entry{}
	}
	return &Registry{path: path, agents: agents}, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

// Path returns the file backing the registry.
func (r *Registry) Path() string {
	return r.path
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[name]
	return e, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns a copy of all entries keyed by name.
func (r *Registry) List() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}

// Resolve returns the base URL for an agent name. http(s) URLs are
// returned as given, without a trailing slash.
func (r *Registry) Resolve(nameOrURL string) (string, error) {
	if IsURL(nameOrURL) {
		return strings.TrimRight(nameOrURL, "/"), nil
	}
	e, ok := r.Get(nameOrURL)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, nameOrURL)
	}
	if e.URL == "" {
		return "", fmt.Errorf("%w: agent %q missing 'url'", ErrInvalid, nameOrURL)
	}
	return e.URL, nil
}

// Add registers or replaces an agent and writes the file.
func (r *Registry) Add(name string, e Entry) error {
	if name == "" {
		return fmt.Errorf("%w: agent name cannot be empty", ErrInvalid)
	}
	if !IsURL(e.URL) {
		return fmt.Errorf("%w: agent %q needs an http(s) url", ErrInvalid, name)
	}
	e.URL = strings.TrimRight(e.URL, "/")

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.agents[name]
	r.agents[name] = e
	if err := r.saveLocked(); err != nil {
		if had {
			r.agents[name] = prev
		} else {
			delete(r.agents, name)
		}
		return err
	}
	return nil
}

// Remove unregisters an agent and writes the file.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.agents, name)
	if err := r.saveLocked(); err != nil {
		r.agents[name] = prev
		return err
	}
	return nil
}

func (r *Registry) saveLocked() error {
	data, err := json.MarshalIndent(file{Agents: r.agents}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Resolve resolves nameOrURL against the registry at path, which is only
// read for names.
func Resolve(nameOrURL, path string) (string, error) {
	if IsURL(nameOrURL) {
		return strings.TrimRight(nameOrURL, "/"), nil
	}
	r, err := Open(path)
	if err != nil {
		return "", err
	}
	return r.Resolve(nameOrURL)
}
