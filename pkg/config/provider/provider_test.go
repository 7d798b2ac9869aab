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

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zkOpenACL = zk.WorldACL(zk.PermAll)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{in: "", want: TypeFile},
		{in: "file", want: TypeFile},
		{in: "Consul", want: TypeConsul},
		{in: "etcd", want: TypeEtcd},
		{in: "zk", want: TypeZookeeper},
		{in: "zookeeper", want: TypeZookeeper},
		{in: "s3", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Options{})
	assert.ErrorContains(t, err, "path is required")

	_, err = New(ctx, Options{Type: "s3", Path: "x"})
	assert.Error(t, err)

	_, err = New(ctx, Options{Type: TypeEtcd, Path: "/a2akit"})
	assert.ErrorContains(t, err, "endpoints are required")

	_, err = New(ctx, Options{Type: TypeZookeeper, Path: "/a2akit"})
	assert.ErrorContains(t, err, "endpoints are required")
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed before signal")
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a2akit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: {name: a}\n"), 0o644))

	p, err := New(context.Background(), Options{Path: path})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, TypeFile, p.Type())

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent: {name: a}\n", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	select {
	case <-ch:
		t.Fatal("signalled for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("agent: {name: b}\n"), 0o644))
	waitSignal(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestFileProvider_ClosedWatch(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "a2akit.yaml"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Watch(context.Background())
	assert.Error(t, err)

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

// fakeConsul serves one KV key with blocking query semantics.
type fakeConsul struct {
	mu      sync.Mutex
	key     string
	value   []byte
	index   uint64
	changed chan struct{}
}

func newFakeConsul(key, value string) *fakeConsul {
	return &fakeConsul{key: key, value: []byte(value), index: 10, changed: make(chan struct{})}
}

func (f *fakeConsul) set(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = []byte(value)
	f.index++
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *fakeConsul) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimPrefix(r.URL.Path, "/v1/kv/") != f.key {
		w.Header().Set("X-Consul-Index", "1")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	wait, _ := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	f.mu.Lock()
	if wait > 0 && wait >= f.index {
		changed := f.changed
		f.mu.Unlock()
		select {
		case <-changed:
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Second):
		}
		f.mu.Lock()
	}
	index, value := f.index, f.value
	f.mu.Unlock()

	w.Header().Set("X-Consul-Index", strconv.FormatUint(index, 10))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]map[string]any{{
		"Key":         f.key,
		"Value":       value,
		"CreateIndex": 1,
		"ModifyIndex": index,
	}})
}

func TestConsulProvider(t *testing.T) {
	fake := newFakeConsul("a2akit/config", "agent: {name: a}\n")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, err := New(context.Background(), Options{
		Type:      TypeConsul,
		Path:      "/a2akit/config",
		Endpoints: []string{strings.TrimPrefix(srv.URL, "http://")},
	})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, TypeConsul, p.Type())

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent: {name: a}\n", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	fake.set("agent: {name: b}\n")
	waitSignal(t, ch)

	data, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent: {name: b}\n", string(data))
}

func TestConsulProvider_MissingKey(t *testing.T) {
	srv := httptest.NewServer(newFakeConsul("present", "x"))
	defer srv.Close()

	p, err := NewConsulProvider(Options{Path: "absent", Endpoints: []string{strings.TrimPrefix(srv.URL, "http://")}})
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	assert.ErrorContains(t, err, "not found")
}

func remoteEndpoints(t *testing.T, env string) []string {
	t.Helper()
	v := os.Getenv(env)
	if v == "" {
		t.Skipf("%s not set", env)
	}
	return strings.Split(v, ",")
}

func TestEtcdProvider_Integration(t *testing.T) {
	endpoints := remoteEndpoints(t, "A2AKIT_TEST_ETCD")
	ctx := context.Background()

	p, err := NewEtcdProvider(ctx, Options{Path: "/a2akit/test", Endpoints: endpoints, DialTimeout: 3 * time.Second})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.client.Put(ctx, p.key, "agent: {name: a}\n")
	require.NoError(t, err)

	data, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "agent: {name: a}\n", string(data))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := p.Watch(watchCtx)
	require.NoError(t, err)

	_, err = p.client.Put(ctx, p.key, "agent: {name: b}\n")
	require.NoError(t, err)
	waitSignal(t, ch)
}

func TestZookeeperProvider_Integration(t *testing.T) {
	endpoints := remoteEndpoints(t, "A2AKIT_TEST_ZOOKEEPER")

	p, err := NewZookeeperProvider(Options{Path: "/a2akit-test", Endpoints: endpoints, DialTimeout: 3 * time.Second})
	require.NoError(t, err)
	defer p.Close()

	_ = p.conn.Delete(p.path, -1)
	_, err = p.conn.Create(p.path, []byte("agent: {name: a}\n"), 0, zkOpenACL)
	require.NoError(t, err)

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent: {name: a}\n", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, err = p.conn.Set(p.path, []byte("agent: {name: b}\n"), -1)
	require.NoError(t, err)
	waitSignal(t, ch)
}
