package decompose

import "strings"

// ParseFactors reads "[NAME]" blocks from an architect response. A header is
// a line whose trimmed text is a bracketed name; its content runs to the next
// header line or the end of the text and is trimmed. Text before the first
// header is ignored and a repeated name keeps its first block.
func ParseFactors(response string) []Factor {
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")

	var (
		factors []Factor
		seen    = make(map[string]bool)
		name    string
		body    []string
		open    bool
	)
	flush := func() {
		if !open || seen[name] {
			return
		}
		seen[name] = true
		factors = append(factors, Factor{
			Name:    name,
			Content: strings.TrimSpace(strings.Join(body, "\n")),
		})
	}

	for _, line := range lines {
		if header, ok := parseHeader(line); ok {
			flush()
			name, body, open = header, nil, true
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	flush()
	return factors
}

func parseHeader(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	if strings.ContainsAny(inner, "[]") {
		return "", false
	}
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return "", false
	}
	return inner, true
}
