package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackmichael/bluesky-crosspost/internal/config"
	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "crosspost.db")
	cfg.SecretKey = strings.Repeat("cd", 32)
	cfg.LogLevel = "error"
	cfg.PDS.Domain = "pds.example.com"
	cfg.Mastodon.URL = "https://social.example.com"
	return &cfg
}

func seedAccount(t *testing.T, cfg *config.Config, a *domain.Account) {
	t.Helper()
	sealer, err := sqlite.NewSealer(cfg.SecretKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	repo, err := sqlite.Open(cfg.DatabasePath, sealer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()
	if err := repo.SaveAccount(context.Background(), a); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
}

func execute(cfg *config.Config, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRequiredFlags(t *testing.T) {
	cfg := testConfig(t)

	if _, err := execute(cfg, "delete", "109"); err == nil || !strings.Contains(err.Error(), "account") {
		t.Errorf("delete without --account: %v", err)
	}
	if _, err := execute(cfg, "create-account", "42"); err == nil || !strings.Contains(err.Error(), "email") {
		t.Errorf("create-account without --email: %v", err)
	}
	if _, err := execute(cfg, "post"); err == nil {
		t.Errorf("post without a status id should fail")
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfg := testConfig(t)
	if _, err := execute(cfg, "--log-level", "loud", "account", "42"); err == nil {
		t.Errorf("expected an error for an invalid log level")
	}
}

func TestEnableUnknownAccount(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(cfg, "enable", "42")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestDisableAndShowAccount(t *testing.T) {
	cfg := testConfig(t)
	seedAccount(t, cfg, &domain.Account{
		ID:                  "42",
		Username:            "alice",
		Handle:              "alice.pds.example.com",
		DID:                 "did:plc:alice",
		Secret:              "secret",
		CrossPostingEnabled: true,
	})

	if _, err := execute(cfg, "disable", "42"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	out, err := execute(cfg, "account", "42")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	for _, want := range []string{"alice.pds.example.com", "did:plc:alice", "enabled:   false", "linked:    true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Errorf("output leaks the secret:\n%s", out)
	}
}

func TestCreateAccountAlreadyLinked(t *testing.T) {
	cfg := testConfig(t)
	seedAccount(t, cfg, &domain.Account{
		ID:       "42",
		Username: "alice",
		Handle:   "alice.pds.example.com",
		DID:      "did:plc:alice",
		Secret:   "secret",
	})

	out, err := execute(cfg, "create-account", "42", "--email", "alice@example.com")
	if err != nil {
		t.Fatalf("create-account: %v", err)
	}
	if !strings.Contains(out, "already linked") {
		t.Errorf("unexpected output %q", out)
	}
}
