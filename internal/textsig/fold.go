package textsig

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Homoglyphs commonly used to disguise Latin text, mapped to their canonical
// Latin form. Cyrillic and Greek rows cover the bulk of obfuscated spam.
var confusables = map[rune]rune{
	// Cyrillic lookalikes
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'з': '3', 'и': 'u', 'й': 'u',
	'к': 'k', 'м': 'm', 'н': 'h', 'о': 'o', 'р': 'p', 'с': 'c', 'т': 't',
	'у': 'y', 'х': 'x', 'ь': 'b', 'і': 'i', 'ї': 'i', 'ј': 'j', 'ѕ': 's',
	'ԁ': 'd', 'ԛ': 'q', 'ԝ': 'w', 'ѵ': 'v', 'ғ': 'f', 'ѡ': 'w',
	'А': 'a', 'В': 'b', 'Е': 'e', 'К': 'k', 'М': 'm', 'Н': 'h', 'О': 'o',
	'Р': 'p', 'С': 'c', 'Т': 't', 'У': 'y', 'Х': 'x', 'І': 'i', 'Ј': 'j',
	'Ѕ': 's',
	// Greek lookalikes
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x', 'γ': 'y',
	'Α': 'a', 'Β': 'b', 'Ε': 'e', 'Η': 'h', 'Ι': 'i', 'Κ': 'k', 'Μ': 'm',
	'Ν': 'n', 'Ο': 'o', 'Ρ': 'p', 'Τ': 't', 'Υ': 'y', 'Χ': 'x',
}

var zeroWidth = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // BOM
}

// Fold maps content to a canonical comparison form: compatibility
// decomposition (folds fullwidth and styled letters), combining-mark
// removal, homoglyph substitution, zero-width stripping and lower-casing.
// Banned-phrase matching runs on folded text so look-alike renderings of a
// phrase still match.
func Fold(content string) string {
	// re-created per call, transform.Chain is not safe for reuse
	normFunc := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(normFunc, content)
	if err != nil {
		normalized = content
	}

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if zeroWidth[r] {
			continue
		}
		if mapped, ok := confusables[r]; ok {
			r = mapped
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// FoldPhrase prepares a banned phrase for matching against folded content:
// folded, with runs of whitespace collapsed to single spaces.
func FoldPhrase(phrase string) string {
	return strings.Join(strings.Fields(Fold(phrase)), " ")
}

// ContainsPhrase reports whether folded content contains the folded phrase.
func ContainsPhrase(foldedContent, foldedPhrase string) bool {
	if foldedPhrase == "" {
		return false
	}
	collapsed := strings.Join(strings.Fields(foldedContent), " ")
	return strings.Contains(collapsed, foldedPhrase)
}
