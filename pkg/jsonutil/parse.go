// Package jsonutil provides the shared LLM-output parsing helper used by
// every agent that expects strict JSON back from a model and must tolerate
// markdown fences or stray prose around it (§9 "LLM-parse recovery").
package jsonutil

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrParse is returned when text contains no recoverable JSON value.
var ErrParse = errors.New("parse_error: no JSON value could be extracted")

// ParseJSONOrExtract attempts a strict json.Unmarshal of text first. On
// failure, it strips an enclosing markdown code fence if present and
// retries; failing that, it extracts the first balanced `{...}` or `[...]`
// substring and retries against that. Returns ErrParse if none of these
// recover a valid JSON value.
//
// Shared by the Decomposer, Summarizer, Reasoner, and Search-Space
// Enumerator — each of which needs exactly this recovery behavior and
// nothing stage-specific beyond it.
func ParseJSONOrExtract(text string, out any) error {
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	trimmed := stripFence(text)
	if trimmed != text {
		if err := json.Unmarshal([]byte(trimmed), out); err == nil {
			return nil
		}
	}

	if block, ok := extractBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(block), out); err == nil {
			return nil
		}
	}

	return ErrParse
}

// stripFence trims a leading/trailing ``` or ```json fence, if present.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// extractBlock returns the first balanced bracketed substring, preferring
// an object if one starts no later than any array in the text.
func extractBlock(text string) (string, bool) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start, open, close := -1, byte(0), byte(0)
	switch {
	case objStart == -1 && arrStart == -1:
		return "", false
	case objStart == -1:
		start, open, close = arrStart, '[', ']'
	case arrStart == -1:
		start, open, close = objStart, '{', '}'
	case objStart <= arrStart:
		start, open, close = objStart, '{', '}'
	default:
		start, open, close = arrStart, '[', ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, brackets don't count
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
