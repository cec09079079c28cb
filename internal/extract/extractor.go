// Package extract turns input files into the ordered list of texts the
// batching client embeds, one text per line.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentExtensions are the formats converted to text before splitting.
// Every other extension is read as plain text.
var DocumentExtensions = []string{".pdf", ".docx", ".xlsx"}

// Lines reads the file at path and returns its texts in order.
//
// Plain text files yield one text per line, trimmed, with blank lines kept
// as empty texts so that output records line up with input lines. Documents
// yield one text per paragraph (DOCX), text line (PDF) or row (XLSX), and
// blank entries are dropped.
func Lines(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return LinesFromBytes(content, strings.ToLower(filepath.Ext(path)))
}

// LinesFromBytes splits content according to ext, which includes the
// leading dot (e.g. ".pdf").
func LinesFromBytes(content []byte, ext string) ([]string, error) {
	switch ext {
	case ".pdf":
		return pdfLines(content)
	case ".docx":
		return docxLines(content)
	case ".xlsx":
		return excelLines(content)
	default:
		return plainLines(content), nil
	}
}

// nonEmpty trims each entry and drops the blank ones.
func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
