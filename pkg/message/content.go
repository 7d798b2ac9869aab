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

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// ExtractContent returns the content carried by parts:
//   - a single data part yields its map,
//   - all-text parts yield the texts joined by newlines,
//   - a single extracted value yields that value,
//   - anything else yields a []any of the extracted values.
//
// File parts contribute their a2a file content. Nil means no content.
func ExtractContent(parts []a2a.Part) any {
	if len(parts) == 0 {
		return nil
	}

	var extracted []any
	for _, p := range parts {
		switch v := p.(type) {
		case a2a.TextPart:
			extracted = append(extracted, v.Text)
		case a2a.DataPart:
			if v.Data == nil {
				continue
			}
			if len(parts) == 1 {
				return v.Data
			}
			extracted = append(extracted, v.Data)
		case a2a.FilePart:
			if v.File != nil {
				extracted = append(extracted, v.File)
			}
		}
	}

	switch len(extracted) {
	case 0:
		return nil
	case 1:
		return extracted[0]
	}

	texts := make([]string, 0, len(extracted))
	for _, e := range extracted {
		s, ok := e.(string)
		if !ok {
			return extracted
		}
		texts = append(texts, s)
	}
	return strings.Join(texts, "\n")
}

// FormatForLLM renders parts as prompt text. Data is indented JSON and
// files become "[File: name] uri" references.
func FormatForLLM(parts []a2a.Part) string {
	var lines []string
	for _, p := range parts {
		switch v := p.(type) {
		case a2a.TextPart:
			lines = append(lines, v.Text)
		case a2a.DataPart:
			b, err := json.MarshalIndent(v.Data, "", "  ")
			if err != nil {
				lines = append(lines, fmt.Sprint(v.Data))
				continue
			}
			lines = append(lines, string(b))
		case a2a.FilePart:
			name, uri := "unnamed", ""
			switch f := v.File.(type) {
			case a2a.FileURI:
				name, uri = f.Name, f.URI
			case a2a.FileBytes:
				name = f.Name
			}
			if name == "" {
				name = "unnamed"
			}
			if uri != "" {
				lines = append(lines, fmt.Sprintf("[File: %s] %s", name, uri))
			} else {
				lines = append(lines, fmt.Sprintf("[File: %s]", name))
			}
		}
	}
	return strings.Join(lines, "\n")
}

var markdownMarkers = []string{"# ", "## ", "### ", "```", "**", "__", "- [ ]", "- [x]", "![", "[]("}

// DetectContentType guesses a MIME type from the filename extension, then
// from the content itself.
func DetectContentType(content any, filename string) string {
	if filename != "" {
		switch ext := strings.ToLower(filepath.Ext(filename)); ext {
		case ".md":
			return "text/markdown"
		case ".txt", ".log", ".csv", ".tsv":
			return "text/plain"
		case ".json", ".jsonl":
			return "application/json"
		case ".xml", ".html", ".htm":
			return "text/html"
		case ".yaml", ".yml":
			return "text/yaml"
		default:
			if t := mime.TypeByExtension(ext); t != "" {
				if mt, _, err := mime.ParseMediaType(t); err == nil {
					return mt
				}
				return t
			}
		}
	}

	switch v := content.(type) {
	case string:
		for _, m := range markdownMarkers {
			if strings.Contains(v, m) {
				return "text/markdown"
			}
		}
		if json.Valid([]byte(v)) {
			return "application/json"
		}
		return "text/plain"
	case []byte:
		return "application/octet-stream"
	case map[string]any, []any:
		return "application/json"
	}
	return "text/plain"
}

// IsText reports whether a MIME type should travel as a text part.
func IsText(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/yaml", "application/x-yaml",
		"application/javascript", "application/typescript":
		return true
	}
	return false
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ErrNoJSON is returned by ExtractJSON when the text holds no object.
var ErrNoJSON = fmt.Errorf("no JSON object found: %w", rpcerror.ErrInvalidArgument)

// ExtractJSON decodes the first JSON object in text. A fenced code block
// is preferred; otherwise the outermost braces are used.
func ExtractJSON(text string) (map[string]any, error) {
	candidates := make([]string, 0, 2)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error = ErrNoJSON
	for _, c := range candidates {
		var out map[string]any
		if err := json.Unmarshal([]byte(c), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	if !errors.Is(lastErr, ErrNoJSON) {
		return nil, fmt.Errorf("extract json: %w", lastErr)
	}
	return nil, lastErr
}
