package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMathDelimiters(t *testing.T) {
	assert.Equal(t, "before $x+y$ after", NormalizeMath(`before \(x+y\) after`))
	assert.Equal(t, "$$E=mc^2$$", NormalizeMath(`\[E=mc^2\]`))
}

func TestNormalizeMathMultiline(t *testing.T) {
	// Delimiters may span lines.
	got := NormalizeMath("\\[a\n+b\\]")
	assert.Equal(t, "$$a\n+b$$", got)
}

func TestNormalizeParenWrappedFormula(t *testing.T) {
	assert.Equal(t, `the potential $V(\phi)=\mu^2$ grows`,
		NormalizeMath(`the potential (V(\phi)=\mu^2) grows`))
	assert.Equal(t, "$x_{1}$", NormalizeMath("(x_{1})"))
}

func TestNormalizeLeavesProseParens(t *testing.T) {
	in := "a statement (with an aside) and more"
	assert.Equal(t, in, NormalizeMath(in))
}

func TestNormalizeLeavesUnbalancedParens(t *testing.T) {
	in := `open (x^2 never closes`
	assert.Equal(t, in, NormalizeMath(in))
}

func TestNormalizePreservesDollarSpans(t *testing.T) {
	in := `already $f(x^2)$ converted`
	assert.Equal(t, in, NormalizeMath(in))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`\(a_1\) and \[b^2\] and (c_{3})`,
		`mixed $d^4$ with (e_5) text`,
		"plain prose with (ordinary parens).",
	}
	for _, in := range inputs {
		once := NormalizeMath(in)
		assert.Equal(t, once, NormalizeMath(once), "input %q", in)
	}
}

func TestSanitizeStripsControlChars(t *testing.T) {
	assert.Equal(t, "ab\tc\nd", sanitize("a\x00b\tc\nd\x07"))
	assert.Equal(t, "xy", sanitize("x\uFFFDy"))
}
