package domain

import (
	"strings"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/media"
	"github.com/blackmichael/bluesky-crosspost/internal/richtext"
)

// Post is a source post to be mirrored. It is never modified by the pipeline.
type Post struct {
	// ID is the source post's identifier.
	ID string

	// AccountID is the source account that authored the post.
	AccountID string

	// Text is the post body. It may contain HTML markup.
	Text string

	CreatedAt time.Time

	// Attachments are the post's media in display order.
	Attachments []media.Attachment

	// Mentions are the accounts mentioned in the post.
	Mentions []MentionedAccount
}

// MentionedAccount is an account referenced from a post's text.
type MentionedAccount struct {
	// Username is the local part of the handle ("alice").
	Username string

	// Acct is the handle as written after the @: "alice" for accounts on the
	// source instance, "alice@example.social" for remote ones.
	Acct string

	// URL is the account's public profile page, when known.
	URL string
}

// ProfileURI returns the public profile location of the account, or "" when
// none can be derived.
func (m MentionedAccount) ProfileURI() string {
	if m.URL != "" {
		return m.URL
	}
	user, domain, ok := strings.Cut(m.Acct, "@")
	if !ok || user == "" || domain == "" {
		return ""
	}
	return "https://" + domain + "/@" + user
}

// MentionIndex builds the handle → profile URI index used for mention
// facets. Local accounts are indexed both by their bare username and by
// username@localDomain. Remote accounts are also indexed by their bare
// username when no other mention shares it, since rendered post HTML then
// shows only "@username".
func (p *Post) MentionIndex(localDomain string) richtext.MentionIndex {
	if len(p.Mentions) == 0 {
		return nil
	}
	usernames := make(map[string]int, len(p.Mentions))
	for _, m := range p.Mentions {
		usernames[strings.ToLower(mentionUsername(m))]++
	}

	idx := make(richtext.MentionIndex, len(p.Mentions))
	for _, m := range p.Mentions {
		acct := strings.ToLower(m.Acct)
		if acct == "" {
			continue
		}
		if strings.Contains(acct, "@") {
			uri := m.ProfileURI()
			idx[acct] = uri
			if user := strings.ToLower(mentionUsername(m)); user != "" && usernames[user] == 1 {
				idx[user] = uri
			}
			continue
		}

		uri := m.URL
		if uri == "" && localDomain != "" {
			uri = "https://" + localDomain + "/@" + m.Acct
		}
		idx[acct] = uri
		if localDomain != "" {
			idx[acct+"@"+strings.ToLower(localDomain)] = uri
		}
	}
	return idx
}

func mentionUsername(m MentionedAccount) string {
	if m.Username != "" {
		return m.Username
	}
	user, _, _ := strings.Cut(m.Acct, "@")
	return user
}
