package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
	"github.com/blackmichael/bluesky-crosspost/internal/media"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func pngBytes(tag string) []byte {
	return append(append([]byte{}, pngMagic...), tag...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	data     map[string][]byte
	modTimes map[string]time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, src media.Source, _ media.Kind) ([]byte, media.SkipReason) {
	b, ok := f.data[src.Location()]
	if !ok {
		return nil, media.SkipMissing
	}
	return b, media.SkipNone
}

func (f *fakeFetcher) ModTime(src media.Source) (time.Time, bool) {
	t, ok := f.modTimes[src.Location()]
	return t, ok
}

var errUpstream = errors.New("upstream exploded")

type fakePDS struct {
	// failUploads lists payloads whose upload is rejected.
	failUploads map[string]bool
	authErr     error
	getErr      error
	profile     lexicon.ProfileRecord

	uploads []string
	created []lexicon.WriteRecordInput
	puts    []lexicon.WriteRecordInput
	deleted []lexicon.ATURI
	authed  []string
}

func (p *fakePDS) Authenticate(_ context.Context, identifier, password string) (lexicon.Session, error) {
	if p.authErr != nil {
		return lexicon.Session{}, p.authErr
	}
	p.authed = append(p.authed, identifier)
	return lexicon.Session{AccessJwt: "jwt-" + identifier, DID: identifier}, nil
}

func (p *fakePDS) CreateRecord(_ context.Context, _ string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error) {
	p.created = append(p.created, in)
	rkey := in.RKey
	if rkey == "" {
		rkey = fmt.Sprintf("rkey%d", len(p.created))
	}
	return lexicon.RecordRef{URI: "at://" + in.Repo + "/" + in.Collection + "/" + rkey, CID: "cid"}, nil
}

func (p *fakePDS) GetRecord(_ context.Context, _ string, _ lexicon.ATURI, out any) error {
	if p.getErr != nil {
		return p.getErr
	}
	*(out.(*lexicon.ProfileRecord)) = p.profile.Clone()
	return nil
}

func (p *fakePDS) PutRecord(_ context.Context, _ string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error) {
	p.puts = append(p.puts, in)
	return lexicon.RecordRef{URI: "at://" + in.Repo + "/" + in.Collection + "/" + in.RKey}, nil
}

func (p *fakePDS) DeleteRecord(_ context.Context, _ string, uri lexicon.ATURI) error {
	p.deleted = append(p.deleted, uri)
	return nil
}

func (p *fakePDS) UploadBlob(_ context.Context, _ string, data []byte, mimeType string) (lexicon.BlobRef, error) {
	if p.failUploads[string(data)] {
		return lexicon.BlobRef{}, errUpstream
	}
	p.uploads = append(p.uploads, string(data))
	var ref lexicon.BlobRef
	ref.Type = "blob"
	ref.Ref.Link = "cid-" + string(data)
	ref.MimeType = mimeType
	ref.Size = len(data)
	return ref, nil
}

type fakeProvisioner struct {
	inviteErr  error
	accountErr error

	// noIdentity makes CreateAccount succeed without a DID or handle.
	noIdentity bool

	adminPassword string
	handle        string
	password      string
}

func (p *fakeProvisioner) CreateInviteCode(_ context.Context, adminPassword string, _ int) (string, error) {
	p.adminPassword = adminPassword
	if p.inviteErr != nil {
		return "", p.inviteErr
	}
	return "invite-1", nil
}

func (p *fakeProvisioner) CreateAccount(_ context.Context, _, handle, password, _ string) (lexicon.Session, error) {
	if p.accountErr != nil {
		return lexicon.Session{}, p.accountErr
	}
	p.handle = handle
	p.password = password
	if p.noIdentity {
		return lexicon.Session{}, nil
	}
	return lexicon.Session{DID: "did:plc:new", Handle: handle}, nil
}

type memAccounts struct {
	accounts map[string]*Account
}

func (m *memAccounts) GetAccount(_ context.Context, id string) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SaveAccount(_ context.Context, account *Account) error {
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memAccounts) SetCrossPosting(_ context.Context, id string, enabled bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.CrossPostingEnabled = enabled
	return nil
}

type memRecords struct {
	uris map[string]string
}

func (m *memRecords) GetRecordURI(_ context.Context, postID string) (string, error) {
	return m.uris[postID], nil
}

func (m *memRecords) SaveRecord(_ context.Context, postID, _ string, ref lexicon.RecordRef) error {
	m.uris[postID] = ref.URI
	return nil
}

func (m *memRecords) DeleteRecord(_ context.Context, postID string) error {
	delete(m.uris, postID)
	return nil
}
