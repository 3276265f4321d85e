package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// coerceJSON parses model output into a Classification. Strict JSON first;
// on failure, a repair pass extracts the first balanced {...} span, which
// handles markdown fences and surrounding prose.
func coerceJSON(text string) (Classification, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{}, fmt.Errorf("empty text returned from model")
	}

	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return fromModelJSON([]byte(trimmed))
	}

	span := extractJSON(trimmed)
	if span == "" {
		return Classification{}, fmt.Errorf("no valid JSON object found")
	}
	return fromModelJSON([]byte(span))
}

// extractJSON finds the first balanced JSON object in a response (handles
// markdown wrappers and prose around the object).
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}
