// validator.go — validates fully-qualified attribute names.
// Grammar: segment('.'segment){1..9}, segment = [a-zA-Z][a-zA-Z0-9]*
// i.e. 2 to 10 dot-separated segments, each starting with a letter.
// A small hand-rolled scanner, matching the teacher's
// internal/mcp/validation.go style of single-purpose validators rather
// than a regexp or grammar library for a grammar this small.
package attrname

import "strings"

const (
	minSegments = 2
	maxSegments = 10
)

// Valid reports whether name satisfies the attribute-name grammar.
func Valid(name string) bool {
	if name == "" {
		return false
	}

	segments := strings.Split(name, ".")
	if len(segments) < minSegments || len(segments) > maxSegments {
		return false
	}

	for _, seg := range segments {
		if !validSegment(seg) {
			return false
		}
	}
	return true
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i, r := range seg {
		switch {
		case i == 0:
			if !isLetter(r) {
				return false
			}
		default:
			if !isLetter(r) && !isDigit(r) {
				return false
			}
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
