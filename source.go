package main

import (
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SourceFile is one ingested input file: its canonicalised text (BOM
// stripped, CRLF normalised to LF) plus the raw path for diagnostics.
type SourceFile struct {
	Path string
	Text string
}

// ReadSourceFile loads path, strips a leading UTF-8 BOM if present, and
// normalises line endings to LF. The canonicalised text — not the raw
// bytes — is what feeds both the lexer and the stable seed (spec.md
// §4.1, §6): two files differing only in BOM presence or line-ending
// style must compile to byte-identical output.
func ReadSourceFile(path string) (*SourceFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("reading %s: %v", path, err)
	}
	stripped, err := stripBOM(raw)
	if err != nil {
		return nil, ioError("decoding %s: %v", path, err)
	}
	canonical := normalizeNewlines(stripped)
	return &SourceFile{Path: path, Text: canonical}, nil
}

func stripBOM(raw []byte) (string, error) {
	// unicode.BOMOverride sniffs for a UTF-8/UTF-16 BOM and transcodes
	// accordingly; for plain UTF-8 input (the only encoding this
	// compiler accepts) it strips the BOM if present and passes bytes
	// through unchanged otherwise.
	transformer := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := transform.NewReader(strings.NewReader(string(raw)), transformer)
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
