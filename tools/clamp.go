package tools

// TruncationSentinel is appended to tool output cut by ClampRunes.
const TruncationSentinel = "\n-- truncated --"

// ClampRunes limits s to n runes, appending TruncationSentinel when it cuts.
// It reports whether truncation happened.
func ClampRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]) + TruncationSentinel, true
}
