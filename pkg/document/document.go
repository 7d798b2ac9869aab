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

// Package document extracts plain text from files attached to messages.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/a2akit/pkg/message"
	"github.com/kadirpekel/a2akit/pkg/rpcerror"
)

// MIME types recognised by Extract.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// MaxCellsPerSheet bounds spreadsheet output.
const MaxCellsPerSheet = 1000

// ErrUnsupported is returned for formats without an extractor.
var ErrUnsupported = fmt.Errorf("unsupported document type: %w", rpcerror.ErrInvalidArgument)

// Document is extracted text plus what was learned about the file.
type Document struct {
	Name     string
	MimeType string
	Text     string
	Metadata map[string]string
}

// Kind normalises a MIME type, falling back to the file extension.
func Kind(name, mimeType string) string {
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".xlsx":
		return MimeXLSX
	}
	return message.DetectContentType(nil, name)
}

// Extract converts data to text according to its type.
func Extract(ctx context.Context, name, mimeType string, data []byte) (*Document, error) {
	kind := Kind(name, mimeType)
	doc := &Document{Name: name, MimeType: kind, Metadata: map[string]string{}}

	var err error
	switch {
	case kind == MimePDF:
		doc.Text, err = extractPDF(ctx, data, doc.Metadata)
	case kind == MimeDOCX:
		doc.Text, err = extractDOCX(data, doc.Metadata)
	case kind == MimeXLSX:
		doc.Text, err = extractXLSX(ctx, data, doc.Metadata)
	case message.IsText(kind):
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupported, name)
		}
		doc.Text = string(data)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, name, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	doc.Metadata["word_count"] = strconv.Itoa(len(strings.Fields(doc.Text)))
	return doc, nil
}

func extractPDF(ctx context.Context, data []byte, meta map[string]string) (_ string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := reader.NumPage()
	meta["pages"] = strconv.Itoa(pages)

	var parts []string
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", i, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractDOCX goes through a temp file because the docx reader opens
// archives by path.
func extractDOCX(data []byte, meta map[string]string) (string, error) {
	f, err := os.CreateTemp("", "a2akit-*.docx")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	doc, err := docx.ReadDocxFile(f.Name())
	if err != nil {
		return "", err
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	meta["paragraphs"] = strconv.Itoa(len(strings.Split(content, "\n\n")))
	return content, nil
}

func extractXLSX(ctx context.Context, data []byte, meta map[string]string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	meta["sheets"] = strconv.Itoa(len(sheets))

	var parts []string
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Sheet: %s ---\nError reading sheet: %v", sheet, err))
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "--- Sheet: %s ---\n", sheet)
		cells := 0
	scan:
		for r, row := range rows {
			for c, cell := range row {
				if cells >= MaxCellsPerSheet {
					sb.WriteString("... (truncated)\n")
					break scan
				}
				text := strings.TrimSpace(cell)
				if text == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return "", err
				}
				fmt.Fprintf(&sb, "%s: %s\n", ref, text)
				cells++
			}
		}
		parts = append(parts, strings.TrimSpace(sb.String()))
	}
	return strings.Join(parts, "\n\n"), nil
}

// IsUnsupported reports whether err came from an unknown document type.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
