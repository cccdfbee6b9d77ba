package textsig

import (
	"testing"
)

func TestFold(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{"plain lowercase", "free nitro", "free nitro"},
		{"uppercase", "FREE NITRO", "free nitro"},
		{"cyrillic homoglyphs", "frее nіtrо", "free nitro"},
		{"greek homoglyphs", "nιtrο", "nitro"},
		{"zero width injection", "fr\u200bee ni\u200ctro", "free nitro"},
		{"combining marks stripped", "frée", "free"},
		{"fullwidth compatibility", "ｆｒｅｅ", "free"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Fold(tc.in); got != tc.want {
				t.Fatalf("Fold(%q): got %q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFoldPhraseCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	if got := FoldPhrase("  Free \t Nitro  "); got != "free nitro" {
		t.Fatalf("got %q", got)
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	folded := Fold("click here for frее  nіtro now")
	if !ContainsPhrase(folded, FoldPhrase("free nitro")) {
		t.Fatalf("expected phrase match in %q", folded)
	}
	if ContainsPhrase(folded, FoldPhrase("free robux")) {
		t.Fatalf("unexpected phrase match")
	}
	if ContainsPhrase(folded, "") {
		t.Fatalf("empty phrase must not match")
	}
}
