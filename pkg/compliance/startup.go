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

package compliance

import (
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
)

// ValidateStartup validates card against the detected platform and logs
// the findings. When raiseOnError is set, a non-compliant card is an error.
func ValidateStartup(card *a2a.AgentCard, detector *PlatformDetector, raiseOnError bool, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if detector == nil {
		detector = NewPlatformDetector()
	}

	result := NewValidator(detector.Detect()).Validate(card)

	logger.Info("A2A compliance check", "summary", result.Summary())
	for _, e := range result.Errors {
		logger.Error("Compliance error", "error", e)
	}
	for _, w := range result.Warnings {
		logger.Warn("Compliance warning", "warning", w)
	}

	if !result.Compliant && raiseOnError {
		return result, fmt.Errorf("A2A Compliance Errors: %q", result.Errors)
	}
	return result, nil
}
