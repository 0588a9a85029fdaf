package detect

// objectCandidates returns every top-level {...} span in s.
// Quotes are only tracked inside an object so apostrophes and quotes in
// surrounding prose do not hide a call. Scanning bytes is safe because the
// delimiters are ASCII and never occur inside a multi-byte UTF-8 sequence.
func objectCandidates(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escape   bool
	)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
