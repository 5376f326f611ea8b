package mastodon

import "time"

// Status is the subset of a Mastodon status entity used for cross-posting.
type Status struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"created_at"`
	Visibility       string            `json:"visibility"`
	Content          string            `json:"content"`
	SpoilerText      string            `json:"spoiler_text"`
	InReplyToID      *string           `json:"in_reply_to_id"`
	Reblog           *Status           `json:"reblog"`
	Account          Account           `json:"account"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
	Mentions         []Mention         `json:"mentions"`
}

// Account is the subset of a Mastodon account entity used for profiles.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
	Note        string `json:"note"`
	Avatar      string `json:"avatar"`
	Header      string `json:"header"`
}

// MediaAttachment is a Mastodon media attachment. URL is null while the
// server is still processing the file.
type MediaAttachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         *string `json:"url"`
	RemoteURL   *string `json:"remote_url"`
	Description *string `json:"description"`
	Meta        struct {
		Original struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"original"`
	} `json:"meta"`
}

// Mention is an account mentioned in a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

// streamEvent is a message from the streaming API. Payload is itself a JSON
// document encoded as a string for update events, and a bare status id for
// delete events.
type streamEvent struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}
