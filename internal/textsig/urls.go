package textsig

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Link is one extracted, syntactically valid URL.
type Link struct {
	Raw        string
	Normalized string
	Host       string
}

// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
var urlRegex = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

var inviteHosts = map[string]bool{
	"discord.gg":         true,
	"discord.me":         true,
	"discord.io":         true,
	"dsc.gg":             true,
	"invite.gg":          true,
	"discord.com":        false, // only /invite/ paths
	"discordapp.com":     false,
	"ptb.discord.com":    false,
	"canary.discord.com": false,
}

// extractLinks pulls candidate URLs out of free-form text and keeps only
// those that survive parsing and normalization. Garbage matches from the
// permissive regex are rejected here.
func extractLinks(content string) []Link {
	matches := urlRegex.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}

	links := make([]Link, 0, len(matches))
	for _, raw := range matches {
		candidate := raw
		if !strings.Contains(candidate, "://") {
			candidate = "http://" + candidate
		}
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
			continue
		}
		normalized, err := purell.NormalizeURLString(candidate, purell.FlagsUsuallySafeGreedy)
		if err != nil {
			continue
		}
		links = append(links, Link{
			Raw:        raw,
			Normalized: normalized,
			Host:       strings.ToLower(u.Hostname()),
		})
	}
	return links
}

// isInviteLink reports whether the link points to a guild invite.
func isInviteLink(l Link) bool {
	wholeHost, known := inviteHosts[l.Host]
	if known && wholeHost {
		return true
	}
	if known && !wholeHost {
		return strings.Contains(strings.ToLower(l.Normalized), "/invite/")
	}
	return false
}
