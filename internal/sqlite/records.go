package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

// GetRecordURI returns the AT-URI of the record mirroring postID, or "" when
// the post has not been mirrored.
func (r *Repository) GetRecordURI(ctx context.Context, postID string) (string, error) {
	var uri string
	err := r.db.QueryRowContext(ctx,
		`SELECT record_uri FROM post_records WHERE post_id = ?`, postID,
	).Scan(&uri)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query record for post %s: %w", postID, err)
	}
	return uri, nil
}

// SaveRecord stores the record mirroring postID.
func (r *Repository) SaveRecord(ctx context.Context, postID, accountID string, ref lexicon.RecordRef) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO post_records (post_id, account_id, record_uri, record_cid, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO UPDATE SET record_uri = excluded.record_uri, record_cid = excluded.record_cid`,
		postID, accountID, ref.URI, ref.CID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save record for post %s: %w", postID, err)
	}
	return nil
}

// DeleteRecord forgets the record mirroring postID.
func (r *Repository) DeleteRecord(ctx context.Context, postID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM post_records WHERE post_id = ?`, postID)
	if err != nil {
		return fmt.Errorf("delete record for post %s: %w", postID, err)
	}
	return nil
}
