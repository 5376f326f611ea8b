package domain

import (
	"errors"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/media"
)

// ErrAccountNotFound is returned by AccountRepository lookups that match nothing.
var ErrAccountNotFound = errors.New("account not found")

// Account links a source account to its mirror account on the PDS.
type Account struct {
	// ID is the source account's identifier.
	ID string

	// Username is the source account's local username, used to derive the
	// PDS handle.
	Username string

	// Email is used when registering the PDS account.
	Email string

	// Handle, DID and Secret are the PDS credentials. They are empty until
	// the mirror account has been created.
	Handle string
	DID    string
	Secret string

	CrossPostingEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether the account has usable PDS credentials.
func (a *Account) Linked() bool {
	return a.DID != "" && a.Handle != "" && a.Secret != ""
}

// ProfileSource is the current profile of a source account.
type ProfileSource struct {
	AccountID   string
	DisplayName string
	Description string
	Avatar      *ProfileImage
	Banner      *ProfileImage

	// Local is false for accounts hosted on other instances; their profiles
	// are never synced.
	Local bool
}

// ProfileImage is an avatar or banner of a source account.
type ProfileImage struct {
	Source   media.Source
	MIMEType string

	// UpdatedAt is when the image last changed. When zero, the local file's
	// modification time is used instead.
	UpdatedAt time.Time
}
