package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

var testKey = strings.Repeat("ab", 32)

func testRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crosspost.db")
	sealer, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	repo, err := Open(path, sealer)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestAccountRoundTrip(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	in := &domain.Account{
		ID:                  "109",
		Username:            "alice",
		Email:               "alice@mail.test",
		Handle:              "alice.pds.test",
		DID:                 "did:plc:alice",
		Secret:              "0123456789abcdef0123456789abcdef",
		CrossPostingEnabled: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := repo.SaveAccount(ctx, in); err != nil {
		t.Fatalf("save account: %v", err)
	}

	got, err := repo.GetAccount(ctx, "109")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Username != in.Username || got.Email != in.Email || got.Handle != in.Handle ||
		got.DID != in.DID || got.Secret != in.Secret || !got.CrossPostingEnabled {
		t.Fatalf("account mismatch:\n got %+v\nwant %+v", got, in)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, now)
	}

	var stored []byte
	if err := repo.db.QueryRow(`SELECT secret FROM accounts WHERE id = ?`, "109").Scan(&stored); err != nil {
		t.Fatalf("read raw secret: %v", err)
	}
	if strings.Contains(string(stored), in.Secret) {
		t.Fatalf("secret stored in plaintext")
	}
}

func TestAccountWithoutCredentials(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()

	if err := repo.SaveAccount(ctx, &domain.Account{ID: "1", Username: "bob", CrossPostingEnabled: true}); err != nil {
		t.Fatalf("save account: %v", err)
	}
	got, err := repo.GetAccount(ctx, "1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Secret != "" || got.Linked() {
		t.Fatalf("expected unlinked account, got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	repo, _ := testRepository(t)

	_, err := repo.GetAccount(context.Background(), "missing")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSetCrossPosting(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()

	if err := repo.SaveAccount(ctx, &domain.Account{ID: "1", Username: "bob", CrossPostingEnabled: true}); err != nil {
		t.Fatalf("save account: %v", err)
	}
	if err := repo.SetCrossPosting(ctx, "1", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, err := repo.GetAccount(ctx, "1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.CrossPostingEnabled {
		t.Fatalf("expected cross-posting disabled")
	}

	if err := repo.SetCrossPosting(ctx, "nope", true); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestWrongKeyCannotOpenSecret(t *testing.T) {
	repo, path := testRepository(t)
	ctx := context.Background()

	if err := repo.SaveAccount(ctx, &domain.Account{ID: "1", Username: "bob", Secret: "s3cret"}); err != nil {
		t.Fatalf("save account: %v", err)
	}
	repo.Close()

	other, err := NewSealer(strings.Repeat("cd", 32))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	reopened, err := Open(path, other)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetAccount(ctx, "1"); !errors.Is(err, ErrUnsealable) {
		t.Fatalf("expected ErrUnsealable, got %v", err)
	}
}

func TestPostRecords(t *testing.T) {
	repo, _ := testRepository(t)
	ctx := context.Background()

	uri, err := repo.GetRecordURI(ctx, "p1")
	if err != nil || uri != "" {
		t.Fatalf("expected no record, got %q, %v", uri, err)
	}

	ref := lexicon.RecordRef{URI: "at://did:plc:alice/app.bsky.feed.post/3k", CID: "bafy"}
	if err := repo.SaveRecord(ctx, "p1", "109", ref); err != nil {
		t.Fatalf("save record: %v", err)
	}
	if uri, err = repo.GetRecordURI(ctx, "p1"); err != nil || uri != ref.URI {
		t.Fatalf("got %q, %v", uri, err)
	}

	if err := repo.DeleteRecord(ctx, "p1"); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if uri, _ = repo.GetRecordURI(ctx, "p1"); uri != "" {
		t.Fatalf("expected record to be gone, got %q", uri)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	repo, path := testRepository(t)
	repo.Close()

	sealer, _ := NewSealer(testKey)
	again, err := Open(path, sealer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	var version int
	if err := again.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("user_version = %d, want %d", version, len(migrations))
	}
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "zz", strings.Repeat("ab", 16)} {
		if _, err := NewSealer(key); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	repo, _ := testRepository(t)

	for i := 0; i < 2; i++ {
		var timeout, foreignKeys int
		if err := repo.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("read busy_timeout: %v", err)
		}
		if err := repo.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("read foreign_keys: %v", err)
		}
		if timeout != busyTimeoutMS || foreignKeys != 1 {
			t.Errorf("connection %d: busy_timeout=%d foreign_keys=%d", i, timeout, foreignKeys)
		}

		// Drop the idle connection so the next query opens a new one.
		repo.db.SetMaxIdleConns(0)
	}
}
