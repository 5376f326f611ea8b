package domain

import (
	"context"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
	"github.com/blackmichael/bluesky-crosspost/internal/media"
)

// Authenticator exchanges PDS credentials for a session.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (lexicon.Session, error)
}

// RecordStore reads and writes repo records. GetRecord errors match
// lexicon.ErrRecordNotFound for missing records.
type RecordStore interface {
	CreateRecord(ctx context.Context, token string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error)
	GetRecord(ctx context.Context, token string, uri lexicon.ATURI, out any) error
	PutRecord(ctx context.Context, token string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error)
	DeleteRecord(ctx context.Context, token string, uri lexicon.ATURI) error
}

// BlobStore uploads media blobs.
type BlobStore interface {
	UploadBlob(ctx context.Context, token string, data []byte, mimeType string) (lexicon.BlobRef, error)
}

// PDS is the full set of repo operations the service needs.
type PDS interface {
	Authenticator
	RecordStore
	BlobStore
}

// AccountProvisioner registers new accounts on the PDS.
type AccountProvisioner interface {
	CreateInviteCode(ctx context.Context, adminPassword string, useCount int) (string, error)
	CreateAccount(ctx context.Context, email, handle, password, inviteCode string) (lexicon.Session, error)
}

// MediaFetcher loads attachment bytes. Failures are reported as a
// SkipReason, never as an error.
type MediaFetcher interface {
	Fetch(ctx context.Context, src media.Source, kind media.Kind) ([]byte, media.SkipReason)
	ModTime(src media.Source) (time.Time, bool)
}

// AccountRepository defines persistence operations for linked accounts.
type AccountRepository interface {
	// GetAccount returns ErrAccountNotFound when no account has the id.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// SaveAccount inserts or updates an account.
	SaveAccount(ctx context.Context, account *Account) error

	// SetCrossPosting toggles cross-posting for an account.
	SetCrossPosting(ctx context.Context, id string, enabled bool) error
}

// PostRecordRepository remembers which record mirrors which source post.
type PostRecordRepository interface {
	// GetRecordURI returns "" when the post has not been mirrored.
	GetRecordURI(ctx context.Context, postID string) (string, error)

	SaveRecord(ctx context.Context, postID, accountID string, ref lexicon.RecordRef) error

	DeleteRecord(ctx context.Context, postID string) error
}
