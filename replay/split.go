package replay

import (
	"strings"
	"unicode"
)

// SplitStatements splits a migration script on top-level semicolons.
// Semicolons inside single-quoted strings, double-quoted identifiers,
// line comments and block comments do not split. Fragments holding only
// whitespace and comments are dropped; some drivers reject them.
func SplitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	hasContent := false

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if hasContent && stmt != "" {
			statements = append(statements, stmt)
		}
		hasContent = false
	}

	const (
		plain = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)
	state := plain

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case plain:
			switch {
			case c == ';':
				flush()
				continue
			case c == '\'':
				state = singleQuote
			case c == '"':
				state = doubleQuote
			case c == '-' && next == '-':
				state = lineComment
			case c == '/' && next == '*':
				state = blockComment
			}
		case singleQuote:
			if c == '\'' {
				if next == '\'' {
					current.WriteRune(c)
					current.WriteRune(next)
					i++
					continue
				}
				state = plain
			}
		case doubleQuote:
			if c == '"' {
				state = plain
			}
		case lineComment:
			if c == '\n' {
				state = plain
			}
		case blockComment:
			if c == '*' && next == '/' {
				current.WriteRune(c)
				current.WriteRune(next)
				i++
				state = plain
				continue
			}
		}

		// Comment openers flip the state before the rune is buffered, so
		// only text outside comments counts as content.
		if state != lineComment && state != blockComment && !unicode.IsSpace(c) {
			hasContent = true
		}
		current.WriteRune(c)
	}
	flush()

	return statements
}
