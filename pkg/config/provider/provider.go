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

// Package provider supplies raw config documents from a file, a consul
// or etcd key, or a zookeeper node, and signals when they change.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Type identifies the config source.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// DefaultDialTimeout bounds the initial connection to a remote store.
const DefaultDialTimeout = 10 * time.Second

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider is a config source. Implementations are safe for concurrent use.
type Provider interface {
	Type() Type

	// Load reads the raw document.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel when the document changes.
	// The channel closes when ctx is done. A nil channel means the
	// source cannot be watched.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// Options selects and configures a provider.
type Options struct {
	Type Type
	// Path is a file path, a consul or etcd key, or a zookeeper node.
	Path string
	// Endpoints of the remote store. Consul uses the first one.
	Endpoints []string
	// Token is the consul ACL token.
	Token       string
	DialTimeout time.Duration
}

// New creates the provider described by opts.
func New(ctx context.Context, opts Options) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(opts)
	case TypeEtcd:
		return NewEtcdProvider(ctx, opts)
	case TypeZookeeper:
		return NewZookeeperProvider(opts)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

// notify sends without blocking; one pending signal is enough.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
