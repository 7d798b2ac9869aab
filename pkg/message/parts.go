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

// Package message builds and reads A2A message parts.
package message

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/a2aproject/a2a-go/a2a"
)

// ItemsKey holds list content wrapped into a data part.
const ItemsKey = "items"

// TextPart returns a text part.
func TextPart(text string) a2a.Part {
	return a2a.TextPart{Text: text}
}

// DataPart returns a data part for structured content.
func DataPart(data map[string]any) a2a.Part {
	return a2a.DataPart{Data: data}
}

// FilePart returns a file part. A non-empty uri takes precedence over
// data, which is base64 encoded.
func FilePart(name, uri string, data []byte, mimeType string) a2a.Part {
	meta := a2a.FileMeta{Name: name, MimeType: mimeType}
	if uri != "" || len(data) == 0 {
		return a2a.FilePart{File: a2a.FileURI{FileMeta: meta, URI: uri}}
	}
	return a2a.FilePart{File: a2a.FileBytes{FileMeta: meta, Bytes: base64.StdEncoding.EncodeToString(data)}}
}

// Parts converts arbitrary content to parts. Strings become text, maps
// become data, slices become data under ItemsKey and parts pass through.
// Anything else is formatted as text.
func Parts(content any) []a2a.Part {
	switch v := content.(type) {
	case nil:
		return nil
	case string:
		return []a2a.Part{TextPart(v)}
	case a2a.Part:
		return []a2a.Part{v}
	case []a2a.Part:
		return v
	case map[string]any:
		return []a2a.Part{DataPart(v)}
	}

	rv := reflect.ValueOf(content)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return []a2a.Part{DataPart(map[string]any{ItemsKey: content})}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			data := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				data[iter.Key().String()] = iter.Value().Interface()
			}
			return []a2a.Part{DataPart(data)}
		}
	}
	return []a2a.Part{TextPart(fmt.Sprint(content))}
}

// AgentMessage wraps content in a new agent message.
func AgentMessage(content any) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleAgent, Parts(content)...)
}

// FirstText returns the text of the first non-empty text part.
func FirstText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	for _, p := range msg.Parts {
		if tp, ok := p.(a2a.TextPart); ok && tp.Text != "" {
			return tp.Text
		}
	}
	return ""
}

// Files returns the file parts of msg.
func Files(msg *a2a.Message) []a2a.FilePart {
	if msg == nil {
		return nil
	}
	var files []a2a.FilePart
	for _, p := range msg.Parts {
		if fp, ok := p.(a2a.FilePart); ok {
			files = append(files, fp)
		}
	}
	return files
}

// FileInfo unpacks a file part. Bytes are decoded when present.
func FileInfo(fp a2a.FilePart) (name, mimeType, uri string, data []byte, err error) {
	switch f := fp.File.(type) {
	case a2a.FileBytes:
		data, err = base64.StdEncoding.DecodeString(f.Bytes)
		if err != nil {
			return f.Name, f.MimeType, "", nil, fmt.Errorf("decode file %q: %w", f.Name, err)
		}
		return f.Name, f.MimeType, "", data, nil
	case a2a.FileURI:
		return f.Name, f.MimeType, f.URI, nil, nil
	}
	return "", "", "", nil, fmt.Errorf("unsupported file content %T", fp.File)
}
