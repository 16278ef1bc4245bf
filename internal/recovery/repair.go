package recovery

import "strings"

// stripFences removes Markdown code-fence wrapping from model output.
// Handles ```json, bare ```, and fences with other language specifiers.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	newline := strings.IndexByte(trimmed, '\n')
	if newline < 0 {
		return trimmed
	}

	body := trimmed[newline+1:]
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// extractBalanced returns the first balanced object or array sub-sequence
// from mixed prose-plus-data text. If the structure never closes, the tail
// from the opener onward is returned so structural repair can balance it.
func extractBalanced(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// repairStructure applies structural repair heuristics in a single
// string-aware scan: it closes an unterminated trailing string literal,
// drops dangling separators before closing brackets and at the end of
// input, inserts a missing separator between adjacent object/array
// literals, and appends whatever closing brackets are needed to balance
// the openers seen.
func repairStructure(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	out := make([]byte, 0, len(s)+4)
	var stack []byte
	inString := false
	escaped := false
	var lastSig byte

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
				lastSig = '"'
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			out = append(out, c)
		case '{', '[':
			if lastSig == '}' || lastSig == ']' {
				out = append(out, ',')
			}
			if c == '{' {
				stack = append(stack, '}')
			} else {
				stack = append(stack, ']')
			}
			out = append(out, c)
			lastSig = c
		case '}', ']':
			out = trimDanglingComma(out)
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
			out = append(out, c)
			lastSig = c
		default:
			out = append(out, c)
			if !isSpace(c) {
				lastSig = c
			}
		}
	}

	if inString {
		out = append(out, '"')
	}
	out = trimDanglingComma(out)

	// Balance the remaining openers, innermost first
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}

	return string(out)
}

// trimDanglingComma removes a trailing separator, preserving any
// whitespace that followed it.
func trimDanglingComma(out []byte) []byte {
	i := len(out)
	for i > 0 && isSpace(out[i-1]) {
		i--
	}
	if i > 0 && out[i-1] == ',' {
		return append(out[:i-1], out[i:]...)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
