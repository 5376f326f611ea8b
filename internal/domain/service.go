package domain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

// ServiceConfig holds the values the Service needs beyond its collaborators.
type ServiceConfig struct {
	// PDSDomain is the handle suffix for created accounts.
	PDSDomain string

	// AdminPassword authorizes invite code creation.
	AdminPassword string

	// Now is the clock used for record timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Service mirrors posts and profiles of linked accounts to their PDS repos.
type Service struct {
	pds         PDS
	provisioner AccountProvisioner
	accounts    AccountRepository
	records     PostRecordRepository
	builder     *RecordBuilder
	diff        *ProfileDiff
	cfg         ServiceConfig
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(pds PDS, provisioner AccountProvisioner, accounts AccountRepository, records PostRecordRepository, builder *RecordBuilder, diff *ProfileDiff, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		pds:         pds,
		provisioner: provisioner,
		accounts:    accounts,
		records:     records,
		builder:     builder,
		diff:        diff,
		cfg:         cfg,
		logger:      logger,
	}
}

// PublishPost mirrors post as a new post record. It returns the stored
// record reference, or a zero reference when the post was skipped.
func (s *Service) PublishPost(ctx context.Context, post *Post) (lexicon.RecordRef, error) {
	account, ok, err := s.activeAccount(ctx, post.AccountID)
	if err != nil || !ok {
		return lexicon.RecordRef{}, err
	}

	existing, err := s.records.GetRecordURI(ctx, post.ID)
	if err != nil {
		return lexicon.RecordRef{}, fmt.Errorf("get record uri: %w", err)
	}
	if existing != "" {
		s.logger.Info("post already mirrored", "post_id", post.ID, "uri", existing)
		return lexicon.RecordRef{}, nil
	}

	session, err := s.pds.Authenticate(ctx, account.DID, account.Secret)
	if err != nil {
		return lexicon.RecordRef{}, fmt.Errorf("authenticate: %w", err)
	}

	record, results := s.builder.BuildPost(ctx, session.AccessJwt, post)

	ref, err := s.pds.CreateRecord(ctx, session.AccessJwt, lexicon.WriteRecordInput{
		Repo:       account.DID,
		Collection: lexicon.CollectionPost,
		Record:     record,
	})
	if err != nil {
		return lexicon.RecordRef{}, fmt.Errorf("create post record: %w", err)
	}

	if err := s.records.SaveRecord(ctx, post.ID, account.ID, ref); err != nil {
		return ref, fmt.Errorf("save record uri: %w", err)
	}

	s.logger.Info("post mirrored",
		"post_id", post.ID,
		"account_id", account.ID,
		"uri", ref.URI,
		"attachments", len(results),
		"embedded", countEmbedded(results),
	)
	return ref, nil
}

func countEmbedded(results []AttachmentResult) int {
	n := 0
	for _, r := range results {
		if r.Contribution != nil {
			n++
		}
	}
	return n
}

// DeletePost removes the record mirroring a post. recordURI may be empty, in
// which case the stored mapping for postID is used.
func (s *Service) DeletePost(ctx context.Context, accountID, postID, recordURI string) error {
	if recordURI == "" && postID != "" {
		uri, err := s.records.GetRecordURI(ctx, postID)
		if err != nil {
			return fmt.Errorf("get record uri: %w", err)
		}
		recordURI = uri
	}
	if recordURI == "" {
		s.logger.Debug("no record to delete", "post_id", postID)
		return nil
	}

	account, ok, err := s.activeAccount(ctx, accountID)
	if err != nil || !ok {
		return err
	}

	uri, err := lexicon.ParseATURI(recordURI)
	if err != nil {
		return fmt.Errorf("delete %q: %w", recordURI, err)
	}

	session, err := s.pds.Authenticate(ctx, account.DID, account.Secret)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	if err := s.pds.DeleteRecord(ctx, session.AccessJwt, uri); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if postID != "" {
		if err := s.records.DeleteRecord(ctx, postID); err != nil {
			return fmt.Errorf("forget record uri: %w", err)
		}
	}

	s.logger.Info("record deleted", "account_id", account.ID, "post_id", postID, "uri", recordURI)
	return nil
}

// SyncProfile brings the profile record of a linked local account up to date.
// It reports whether a put was issued.
func (s *Service) SyncProfile(ctx context.Context, src *ProfileSource) (bool, error) {
	if !src.Local {
		s.logger.Debug("not syncing remote account profile", "account_id", src.AccountID)
		return false, nil
	}

	account, ok, err := s.activeAccount(ctx, src.AccountID)
	if err != nil || !ok {
		return false, err
	}

	session, err := s.pds.Authenticate(ctx, account.DID, account.Secret)
	if err != nil {
		return false, fmt.Errorf("authenticate: %w", err)
	}

	uri := lexicon.ATURI{Repo: account.DID, Collection: lexicon.CollectionProfile, RKey: lexicon.ProfileRKey}
	var current lexicon.ProfileRecord
	if err := s.pds.GetRecord(ctx, session.AccessJwt, uri, &current); err != nil {
		if errors.Is(err, lexicon.ErrRecordNotFound) {
			s.logger.Warn("could not fetch current profile", "account_id", account.ID, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("get profile record: %w", err)
	}

	update := s.diff.Plan(ctx, session.AccessJwt, current, src, s.builder)
	if !update.NeedsUpdate() {
		s.logger.Info("profile up to date", "account_id", account.ID)
		return false, nil
	}

	_, err = s.pds.PutRecord(ctx, session.AccessJwt, lexicon.WriteRecordInput{
		Repo:       account.DID,
		Collection: lexicon.CollectionProfile,
		RKey:       lexicon.ProfileRKey,
		Record:     update.Candidate,
	})
	if err != nil {
		return false, fmt.Errorf("put profile record: %w", err)
	}

	s.logger.Info("profile synced",
		"account_id", account.ID,
		"text_changed", update.TextChanged,
		"uploaded", update.Uploaded,
		"removed", update.Removed,
	)
	return true, nil
}

// CreateAccount registers a PDS account for a source account that has
// cross-posting enabled but no mirror yet, then writes its initial profile.
// On failure cross-posting is disabled for the account.
func (s *Service) CreateAccount(ctx context.Context, src *ProfileSource) (err error) {
	account, err := s.accounts.GetAccount(ctx, src.AccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if !account.CrossPostingEnabled || account.DID != "" {
		s.logger.Debug("account creation not needed", "account_id", account.ID)
		return nil
	}

	defer func() {
		if err == nil {
			return
		}
		if derr := s.accounts.SetCrossPosting(ctx, account.ID, false); derr != nil {
			s.logger.Error("failed to disable cross-posting", "account_id", account.ID, "error", derr)
		}
	}()

	secret, err := newSecret()
	if err != nil {
		return err
	}
	handle := account.Username + "." + s.cfg.PDSDomain

	invite, err := s.provisioner.CreateInviteCode(ctx, s.cfg.AdminPassword, 1)
	if err != nil {
		return fmt.Errorf("create invite code: %w", err)
	}

	created, err := s.provisioner.CreateAccount(ctx, account.Email, handle, secret, invite)
	if err != nil {
		return fmt.Errorf("create pds account: %w", err)
	}
	if created.DID == "" || created.Handle == "" {
		s.logger.Warn("pds account creation returned no identity, leaving account unlinked",
			"account_id", account.ID,
			"handle", handle,
		)
		return nil
	}
	s.logger.Info("pds account created", "account_id", account.ID, "did", created.DID, "handle", created.Handle)

	account.DID = created.DID
	account.Handle = created.Handle
	account.Secret = secret
	account.UpdatedAt = s.cfg.Now().UTC()
	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	session, err := s.pds.Authenticate(ctx, account.DID, account.Secret)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	profile := s.builder.BuildProfile(ctx, session.AccessJwt, src, s.cfg.Now())
	_, err = s.pds.CreateRecord(ctx, session.AccessJwt, lexicon.WriteRecordInput{
		Repo:       account.DID,
		Collection: lexicon.CollectionProfile,
		RKey:       lexicon.ProfileRKey,
		Record:     profile,
	})
	if err != nil {
		return fmt.Errorf("create profile record: %w", err)
	}

	s.logger.Info("account linked", "account_id", account.ID, "handle", account.Handle)
	return nil
}

// activeAccount loads the account and reports whether it may be mirrored.
func (s *Service) activeAccount(ctx context.Context, id string) (*Account, bool, error) {
	account, err := s.accounts.GetAccount(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		s.logger.Debug("account not linked", "account_id", id)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get account: %w", err)
	}
	if !account.CrossPostingEnabled || !account.Linked() {
		s.logger.Debug("cross-posting inactive", "account_id", id)
		return account, false, nil
	}
	return account, true, nil
}

// newSecret returns 16 random bytes, hex encoded.
func newSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
