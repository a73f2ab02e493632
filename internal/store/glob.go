package store

// matchGlob reports whether name matches a Redis-style KEYS pattern
// supporting '*' (any run of characters), '?' (any single character),
// and '[...]' character classes (with a leading '^' for negation and
// '-' ranges). There is no escape character, matching the source's
// pattern semantics.
func matchGlob(pattern, name string) bool {
	return globMatch([]byte(pattern), []byte(name))
}

func globMatch(pat, s []byte) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			for len(pat) > 1 && pat[1] == '*' {
				pat = pat[1:]
			}
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pat[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pat = pat[1:]
			s = s[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			end := classEnd(pat)
			if end < 0 {
				// Unterminated class: treat '[' as a literal.
				if s[0] != '[' {
					return false
				}
				pat = pat[1:]
				s = s[1:]
				continue
			}
			if !matchClass(pat[1:end], s[0]) {
				return false
			}
			pat = pat[end+1:]
			s = s[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			pat = pat[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}

func classEnd(pat []byte) int {
	for i := 1; i < len(pat); i++ {
		if pat[i] == ']' {
			return i
		}
	}
	return -1
}

func matchClass(class []byte, c byte) bool {
	negate := false
	if len(class) > 0 && class[0] == '^' {
		negate = true
		class = class[1:]
	}
	found := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				found = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			found = true
		}
	}
	return found != negate
}
