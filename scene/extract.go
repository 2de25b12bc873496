package scene

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extractor picks the activity phrase out of the lowercased, space-joined caption text.
// It returns false when no token qualifies, in which case Reduce falls back to the
// first raw caption.
type Extractor func(text string) (string, bool)

const gerundSuffix = "ing"

// Tokenize splits text into runs of word characters. A word character is a Unicode
// letter, a Unicode number or an underscore; everything else is a boundary.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// IsGerund reports whether tok is at least one word character followed by "ing".
// "ing" on its own does not qualify.
func IsGerund(tok string) bool {
	if !strings.HasSuffix(tok, gerundSuffix) {
		return false
	}
	return utf8.RuneCountInString(tok) > utf8.RuneCountInString(gerundSuffix)
}

// FirstGerund is the default Extractor: the first token, scanning left to right,
// that ends in "ing".
func FirstGerund(text string) (string, bool) {
	for _, tok := range Tokenize(text) {
		if IsGerund(tok) {
			return tok, true
		}
	}
	return "", false
}
