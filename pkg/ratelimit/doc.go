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

// Package ratelimit caps how many requests a caller may send per time
// window.
//
// Callers are identified by the authenticated subject when bearer auth is
// on, and by client address otherwise. Every rule must hold for a request
// to pass:
//
//	server:
//	  rate_limit:
//	    enabled: true
//	    limits:
//	      - window: minute
//	        limit: 60
//	      - window: day
//	        limit: 5000
//
// Usage lives in a Store. MemoryStore suits a single instance; expired
// windows are dropped by Limiter.Run.
package ratelimit
