package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
)

// GetAccount returns the account with the given source id.
func (r *Repository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		a                    domain.Account
		secret               []byte
		enabled              int
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, handle, did, secret, cross_posting_enabled, created_at, updated_at
		FROM accounts
		WHERE id = ?`, id,
	).Scan(&a.ID, &a.Username, &a.Email, &a.Handle, &a.DID, &secret, &enabled, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account %s: %w", id, err)
	}

	a.CrossPostingEnabled = enabled != 0
	if len(secret) > 0 {
		if a.Secret, err = r.sealer.Open(secret); err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("account %s created_at: %w", id, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("account %s updated_at: %w", id, err)
	}
	return &a, nil
}

// SaveAccount inserts the account or replaces the stored one with the same id.
func (r *Repository) SaveAccount(ctx context.Context, a *domain.Account) error {
	var secret []byte
	if a.Secret != "" {
		sealed, err := r.sealer.Seal(a.Secret)
		if err != nil {
			return fmt.Errorf("seal secret: %w", err)
		}
		secret = sealed
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, email, handle, did, secret, cross_posting_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			handle = excluded.handle,
			did = excluded.did,
			secret = excluded.secret,
			cross_posting_enabled = excluded.cross_posting_enabled,
			updated_at = excluded.updated_at`,
		a.ID, a.Username, a.Email, a.Handle, a.DID, secret, boolInt(a.CrossPostingEnabled),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

// SetCrossPosting toggles cross-posting for an account.
func (r *Repository) SetCrossPosting(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET cross_posting_enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
