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

// Package server exposes one A2A agent over HTTP.
//
// The JSON-RPC endpoint and card handlers come from the a2a-go SDK; this
// package adds routing, the health and debug endpoints, and the
// middleware chain (observability, access log, CORS, bearer auth).
//
//	srv := server.NewHTTPServer(cfg, card, exec,
//		server.WithTaskStore(store),
//		server.WithObservability(obs),
//	)
//	err := srv.Start(ctx)
package server
