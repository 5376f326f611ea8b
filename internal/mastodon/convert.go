// Package mastodon reads posts and profiles from a Mastodon instance and
// turns them into cross-posting jobs.
package mastodon

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/media"
	"github.com/blackmichael/bluesky-crosspost/internal/richtext"
)

const (
	displayNameBudget = 64
	descriptionBudget = 256
)

// Visibilities that are mirrored. Followers-only and direct posts stay put.
var mirroredVisibility = map[string]bool{
	"public":   true,
	"unlisted": true,
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// Converter maps Mastodon entities to domain models. Media served from
// LocalMediaPrefix is read from local storage instead of downloaded.
type Converter struct {
	LocalMediaPrefix string
}

// Mirrorable reports whether s should be cross-posted at all.
func Mirrorable(s *Status) bool {
	if s.Reblog != nil {
		return false
	}
	return mirroredVisibility[s.Visibility]
}

// Post converts a status to a domain.Post.
func (c Converter) Post(s *Status) *domain.Post {
	post := &domain.Post{
		ID:        s.ID,
		AccountID: s.Account.ID,
		Text:      s.Content,
		CreatedAt: s.CreatedAt,
	}

	for _, m := range s.MediaAttachments {
		post.Attachments = append(post.Attachments, c.attachment(m))
	}
	for _, m := range s.Mentions {
		post.Mentions = append(post.Mentions, domain.MentionedAccount{
			Username: m.Username,
			Acct:     m.Acct,
			URL:      m.URL,
		})
	}
	return post
}

func (c Converter) attachment(m MediaAttachment) media.Attachment {
	a := media.Attachment{
		ID:     m.ID,
		Kind:   kindOf(m.Type),
		Width:  m.Meta.Original.Width,
		Height: m.Meta.Original.Height,
	}
	if m.Description != nil {
		a.Description = *m.Description
	}
	if m.URL != nil && *m.URL != "" {
		a.Ready = true
		a.Source = c.source(*m.URL)
		a.MIMEType = mimeTypeOf(a.Kind, *m.URL)
	}
	return a
}

func kindOf(mastodonType string) media.Kind {
	switch mastodonType {
	case "image":
		return media.KindImage
	case "video", "gifv":
		return media.KindVideo
	default:
		return media.KindOther
	}
}

// mimeTypeOf guesses the stored type of a media file from its URL. Mastodon
// transcodes gifv and video to mp4.
func mimeTypeOf(kind media.Kind, rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))

	if kind == media.KindVideo {
		if t, ok := videoTypes[ext]; ok {
			return t
		}
		return "video/mp4"
	}
	if ext == ".jpg" {
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return ""
}

func (c Converter) source(rawURL string) media.Source {
	if c.LocalMediaPrefix != "" && strings.HasPrefix(rawURL, c.LocalMediaPrefix) {
		key := strings.TrimPrefix(strings.TrimPrefix(rawURL, c.LocalMediaPrefix), "/")
		if u, err := url.Parse(key); err == nil {
			key = u.Path
		}
		return media.LocalSource(key)
	}
	return media.RemoteSource(rawURL)
}

// Profile converts an account to a domain.ProfileSource, reducing the note to
// plain text. Default avatar and header images are treated as absent.
func (c Converter) Profile(a *Account) *domain.ProfileSource {
	return &domain.ProfileSource{
		AccountID:   a.ID,
		DisplayName: richtext.Truncate(a.DisplayName, displayNameBudget),
		Description: richtext.Normalize(a.Note, descriptionBudget),
		Avatar:      c.profileImage(a.Avatar),
		Banner:      c.profileImage(a.Header),
		Local:       !strings.Contains(a.Acct, "@"),
	}
}

func (c Converter) profileImage(rawURL string) *domain.ProfileImage {
	if rawURL == "" || strings.HasSuffix(rawURL, "/missing.png") {
		return nil
	}
	return &domain.ProfileImage{
		Source:   c.source(rawURL),
		MIMEType: mimeTypeOf(media.KindImage, rawURL),
	}
}
