package textsig

import (
	"testing"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	sig := Extract("join https://example.com/page and www.test.org too")
	if len(sig.Links) != 2 {
		t.Fatalf("links: got %d want 2, %+v", len(sig.Links), sig.Links)
	}
	if sig.Links[0].Host != "example.com" {
		t.Fatalf("first host: got %q", sig.Links[0].Host)
	}
	if sig.HasInviteLink {
		t.Fatalf("unexpected invite link")
	}
}

func TestExtractInviteLinks(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		content string
		invite  bool
	}{
		{"gg short link", "join discord.gg/abc123", true},
		{"full invite path", "https://discord.com/invite/abc123", true},
		{"plain discord.com", "read https://discord.com/terms", false},
		{"unrelated host", "see https://example.com/invite/abc", false},
		{"bare text", "no links here", false},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig := Extract(tc.content)
			if sig.HasInviteLink != tc.invite {
				t.Fatalf("invite: got %v want %v (%+v)", sig.HasInviteLink, tc.invite, sig.Links)
			}
		})
	}
}

func TestExtractGraphemesCountsClusters(t *testing.T) {
	t.Parallel()

	// 4 letters plus a family emoji built from ZWJ-joined codepoints
	sig := Extract("abcd👨‍👩‍👧")
	if sig.Graphemes != 5 {
		t.Fatalf("graphemes: got %d want 5", sig.Graphemes)
	}
}

func TestExtractMentions(t *testing.T) {
	t.Parallel()

	sig := Extract("<@123> <@!456> hello @everyone")
	if sig.MentionCount != 2 {
		t.Fatalf("mentions: got %d want 2", sig.MentionCount)
	}
	if !sig.MentionEveryone {
		t.Fatalf("expected everyone ping")
	}

	quiet := Extract("just words")
	if quiet.MentionCount != 0 || quiet.MentionEveryone {
		t.Fatalf("unexpected mentions: %+v", quiet)
	}
}
