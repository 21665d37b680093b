package pipeline

import (
	"strings"

	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// extractText concatenates all text content blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// stripFences removes a leading markdown code fence (```json or ```) and
// its closing fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}
	return strings.TrimSpace(text)
}

// extractJSON pulls the first well-formed top-level JSON object or array
// out of raw generation text, tolerating code fences and surrounding
// prose. The boolean is false when no candidate is found; the caller must
// treat that as a malformed-output failure, never as an empty result.
func extractJSON(text string) (string, bool) {
	text = stripFences(text)
	if text == "" {
		return "", false
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	start := objStart
	open, close := byte('{'), byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		open, close = '[', ']'
	}
	if start < 0 {
		return "", false
	}

	// Walk to the matching close bracket, respecting strings and escapes.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
