// Package parse turns model output into JSON objects. Models often wrap JSON in
// markdown fences; only the first fence is ever used.
package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	jsonFence  = "```json"
	plainFence = "```"

	previewLimit = 500
)

// ParseError reports output that did not decode. Preview holds the first 500
// characters of the raw model text.
type ParseError struct {
	Err     error
	Preview string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v (preview: %q)", e.Err, e.Preview)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extract returns the body of the first ```json fence, else of the first plain
// fence, else the whole text. An unterminated fence runs to the end of text.
func Extract(text string) string {
	if i := strings.Index(text, jsonFence); i >= 0 {
		return fenceBody(text, i+len(jsonFence))
	}
	if i := strings.Index(text, plainFence); i >= 0 {
		return fenceBody(text, i+len(plainFence))
	}
	return strings.TrimSpace(text)
}

func fenceBody(text string, start int) string {
	rest := text[start:]
	if end := strings.Index(rest, plainFence); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// Object decodes text into a JSON object.
func Object(text string) (map[string]any, error) {
	var out map[string]any
	if err := Decode(text, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &ParseError{Err: errors.New("expected a JSON object, got null"), Preview: Preview(text)}
	}
	return out, nil
}

// Decode extracts and strictly decodes text into v. Trailing content after the
// JSON value is an error.
func Decode(text string, v any) error {
	body := Extract(text)
	if body == "" {
		return &ParseError{Err: errors.New("empty response"), Preview: Preview(text)}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return &ParseError{Err: err, Preview: Preview(text)}
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return &ParseError{Err: err, Preview: Preview(text)}
	}
	return nil
}

// Preview truncates to previewLimit runes without splitting a character.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	n := 0
	for i := range text {
		if n == previewLimit {
			return text[:i]
		}
		n++
	}
	return text
}
