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

package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated config schema.
const SchemaID = "https://github.com/kadirpekel/a2akit/schemas/config.json"

var durationType = reflect.TypeOf(time.Duration(0))

// Schema returns the JSON Schema of the config document. Definitions are
// inlined so editors can use it without resolving references.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Duration such as 30s or 5m",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.ID = SchemaID
	schema.Title = "a2akit configuration"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Examples = []any{
		map[string]any{
			"agent": map[string]any{
				"name":        "echo",
				"description": "Echoes its input",
				"skills": []any{
					map[string]any{"id": "echo", "name": "Echo"},
				},
			},
			"server": map[string]any{"port": 8000},
			"llm":    map[string]any{"provider": "openai", "api_key": "${OPENAI_API_KEY}"},
		},
	}
	return schema
}
