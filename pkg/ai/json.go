package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reasoning models may prefix answers with a <think> block; strip it before
// looking for JSON.
var thinkPrefix = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON pulls the first valid JSON value out of a model response.
// Responses arrive wrapped in think blocks, markdown fences, or prose, so
// the text is scanned for a balanced object or array rather than parsed
// as-is.
func ExtractJSON(response string) (string, error) {
	text := thinkPrefix.ReplaceAllString(response, "")

	for _, pos := range candidateStarts(text) {
		if span, ok := balancedSpan(text, pos); ok && json.Valid([]byte(span)) {
			return span, nil
		}
	}

	if trimmed := strings.TrimSpace(text); json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// candidateStarts returns the offsets of the first '{' and first '[',
// earliest first, so a prose-wrapped object is preferred over a bracket
// that appears later in the text.
func candidateStarts(s string) []int {
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')

	switch {
	case obj < 0 && arr < 0:
		return nil
	case obj < 0:
		return []int{arr}
	case arr < 0:
		return []int{obj}
	case obj < arr:
		return []int{obj, arr}
	default:
		return []int{arr, obj}
	}
}

// balancedSpan returns the balanced JSON value beginning at start. String
// literals and escapes are tracked so brackets inside values do not end the
// span early.
func balancedSpan(s string, start int) (string, bool) {
	opener := s[start]
	var closer byte
	switch opener {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseJSONResponse extracts the JSON payload from a response and
// unmarshals it into T.
func parseJSONResponse[T any](response string) (T, error) {
	var out T

	payload, err := ExtractJSON(response)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return out, nil
}
