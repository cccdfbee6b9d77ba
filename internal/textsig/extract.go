// Package textsig derives per-message text signals for the classifier:
// extracted links, confusable-folded content and grapheme-aware length.
// Extraction is pure, does no I/O and holds no shared state, so it can run
// fully in parallel across messages.
package textsig

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

var userMentionRegex = regexp.MustCompile(`<@!?\d+>`)

// Signals is the derived, immutable signal set for one message. Owned by
// the classifier invocation that requested it; never cached.
type Signals struct {
	Links  []Link
	Folded string
	// Graphemes counts user-perceived characters (grapheme clusters), not
	// code units, so combining marks and ZWJ sequences count once.
	Graphemes     int
	HasInviteLink bool
	// MentionCount counts distinct user mention tags in the raw content;
	// everyone/here pings count against the mass-mention cap directly.
	MentionCount    int
	MentionEveryone bool
}

func Extract(content string) Signals {
	s := Signals{
		Links:           extractLinks(content),
		Folded:          Fold(content),
		Graphemes:       uniseg.GraphemeClusterCount(content),
		MentionCount:    len(userMentionRegex.FindAllString(content, -1)),
		MentionEveryone: strings.Contains(content, "@everyone") || strings.Contains(content, "@here"),
	}
	for _, l := range s.Links {
		if isInviteLink(l) {
			s.HasInviteLink = true
			break
		}
	}
	return s
}
