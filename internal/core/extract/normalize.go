package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	displayMathRe = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	inlineMathRe  = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
)

// mathChars inside a parenthesized span mark it as a formula.
const mathChars = `\^_{}`

// NormalizeMath converts LaTeX math delimiters to markdown-compatible dollar
// delimiters: \(...\) becomes $...$, \[...\] becomes $$...$$, and a
// parenthesis-wrapped span containing LaTeX syntax becomes $...$.
//
// Text already inside $...$ is copied verbatim, which makes the function
// idempotent: normalizing twice equals normalizing once.
func NormalizeMath(text string) string {
	text = displayMathRe.ReplaceAllString(text, `$$$$${1}$$$$`)
	text = inlineMathRe.ReplaceAllString(text, `$$${1}$$`)
	return normalizeParenMath(text)
}

func normalizeParenMath(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		c := text[i]

		// Skip sections already in $ delimiters.
		if c == '$' {
			j := i + 1
			for j < len(text) && text[j] != '$' {
				j++
			}
			if j < len(text) {
				j++ // closing $
			}
			b.WriteString(text[i:j])
			i = j
			continue
		}

		if c == '(' {
			depth := 1
			j := i + 1
			for j < len(text) && depth > 0 {
				switch text[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			// Unbalanced parens are left untouched.
			if depth == 0 {
				content := text[i+1 : j-1]
				if strings.ContainsAny(content, mathChars) {
					b.WriteByte('$')
					b.WriteString(content)
					b.WriteByte('$')
					i = j
					continue
				}
			}
		}

		b.WriteByte(c)
		i++
	}
	return b.String()
}

// sanitize drops NUL and other control characters that break Postgres text
// columns, keeping tab, newline and carriage return.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		case unicode.ReplacementChar:
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
