package i18n

import "strings"

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"ru": "Russian",
}

// LanguageName returns the English name of the language code, or "" for an
// unsupported code.
func LanguageName(code string) string {
	return languageNames[strings.ToLower(code)]
}

// Supported reports whether the language code has a catalog (or is English).
func Supported(code string) bool {
	_, ok := languageNames[strings.ToLower(code)]
	return ok
}

// Languages returns the supported language codes.
func Languages() []string {
	codes := make([]string, 0, len(languageNames))
	for code := range languageNames {
		codes = append(codes, code)
	}
	return codes
}
