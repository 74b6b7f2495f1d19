package llm

import (
	"strings"
)

// CleanMarkdownWrapper strips a surrounding ``` or ```json code fence.
func CleanMarkdownWrapper(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	idx := strings.Index(s, "\n")
	if idx == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[idx+1:]

	if end := strings.LastIndex(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// ExtractJSONArray returns the first syntactically complete JSON array in
// content, matching brackets outside string literals.
func ExtractJSONArray(content string) (string, bool) {
	return extractBalanced(content, '[', ']')
}

// ExtractJSONObject returns the first syntactically complete JSON object in content.
func ExtractJSONObject(content string) (string, bool) {
	return extractBalanced(content, '{', '}')
}

func extractBalanced(content string, open, closing byte) (string, bool) {
	for start := strings.IndexByte(content, open); start != -1; {
		if end, ok := matchFrom(content, start, open, closing); ok {
			return content[start : end+1], true
		}
		next := strings.IndexByte(content[start+1:], open)
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchFrom returns the index of the bracket closing the one at start.
func matchFrom(content string, start int, open, closing byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(content); i++ {
		ch := content[i]
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
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
