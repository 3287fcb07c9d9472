package sqlvalidate

import "strings"

// StripComments removes "--" line comments and "/* */" block comments from sql. Comment markers
// inside single-quoted strings, double-quoted or backquoted identifiers are left alone. Each
// removed comment is replaced by a single space, or a newline for line comments.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := quotedEnd(sql, i)
			b.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			nl := strings.IndexByte(sql[i:], '\n')
			if nl == -1 {
				return b.String()
			}
			b.WriteByte('\n')
			i += nl + 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			b.WriteByte(' ')
			if end == -1 {
				return b.String()
			}
			i += 2 + end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// StripLiterals empties every single-quoted string literal in sql, leaving '' in its place.
// Double-quoted and backquoted identifiers are kept as they are.
func StripLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		if sql[i] != '\'' {
			b.WriteByte(sql[i])
			i++
			continue
		}
		end := quotedEnd(sql, i)
		b.WriteString("''")
		i = end
	}
	return b.String()
}

// quotedEnd returns the index just past the quoted section starting at start. Doubled quotes and
// backslash escapes stay inside the section. An unterminated section runs to the end of input.
func quotedEnd(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}
