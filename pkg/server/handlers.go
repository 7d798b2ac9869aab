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

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string             `json:"status"`
	Agent        string             `json:"agent"`
	Version      string             `json:"version"`
	Protocol     string             `json:"protocol"`
	Capabilities HealthCapabilities `json:"capabilities"`
}

// HealthCapabilities mirrors the card capabilities.
type HealthCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"push_notifications"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Agent:    s.card.Name,
		Version:  s.card.Version,
		Protocol: s.card.ProtocolVersion,
		Capabilities: HealthCapabilities{
			Streaming:         s.card.Capabilities.Streaming,
			PushNotifications: s.card.Capabilities.PushNotifications,
		},
	})
}

func (s *HTTPServer) handleDebugTask(w http.ResponseWriter, r *http.Request) {
	id := a2a.TaskID(chi.URLParam(r, "id"))
	t, err := s.taskStore.Get(r.Context(), id)
	switch {
	case errors.Is(err, a2a.ErrTaskNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found", "id": string(id)})
	case err != nil:
		s.logger.Error("Failed to load task", "task_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, t)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
