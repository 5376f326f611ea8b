package domain

import (
	"context"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

// DefaultProfileFreshness is how recently a local avatar or banner must have
// changed for an already-present remote image to be uploaded again.
const DefaultProfileFreshness = time.Hour

// ProfileImageUploader uploads a profile image, returning nil on failure.
// RecordBuilder implements it.
type ProfileImageUploader interface {
	UploadProfileImage(ctx context.Context, token, accountID, field string, img *ProfileImage) *lexicon.BlobRef
}

// ProfileUpdate is the candidate record computed by ProfileDiff.Plan along
// with what changed relative to the stored record.
type ProfileUpdate struct {
	Candidate   lexicon.ProfileRecord
	TextChanged bool

	// Uploaded and Removed name the image fields ("avatar", "banner") that
	// were replaced or cleared.
	Uploaded []string
	Removed  []string
}

// NeedsUpdate reports whether the candidate should be written back.
func (u ProfileUpdate) NeedsUpdate() bool {
	return u.TextChanged || len(u.Uploaded) > 0 || len(u.Removed) > 0
}

// ProfileDiff decides which parts of a stored profile record are stale.
type ProfileDiff struct {
	window  time.Duration
	now     func() time.Time
	fetcher MediaFetcher
}

// NewProfileDiff creates a ProfileDiff. A zero window uses
// DefaultProfileFreshness and a nil now uses time.Now.
func NewProfileDiff(window time.Duration, now func() time.Time, fetcher MediaFetcher) *ProfileDiff {
	if window <= 0 {
		window = DefaultProfileFreshness
	}
	if now == nil {
		now = time.Now
	}
	return &ProfileDiff{window: window, now: now, fetcher: fetcher}
}

// Fresh reports whether img changed within the freshness window. Images with
// no known modification time are never fresh.
func (d *ProfileDiff) Fresh(img *ProfileImage) bool {
	changed := img.UpdatedAt
	if changed.IsZero() && d.fetcher != nil {
		t, ok := d.fetcher.ModTime(img.Source)
		if !ok {
			return false
		}
		changed = t
	}
	if changed.IsZero() {
		return false
	}
	return d.now().Sub(changed) <= d.window
}

// Plan builds an update candidate from current, the record stored remotely,
// and src. Images are uploaded through up only when missing remotely or
// fresh locally.
func (d *ProfileDiff) Plan(ctx context.Context, token string, current lexicon.ProfileRecord, src *ProfileSource, up ProfileImageUploader) ProfileUpdate {
	u := ProfileUpdate{Candidate: current.Clone()}

	if current.DisplayName != src.DisplayName || current.Description != src.Description {
		u.TextChanged = true
	}
	u.Candidate.DisplayName = src.DisplayName
	u.Candidate.Description = src.Description

	d.planImage(ctx, token, &u, src.AccountID, "avatar", src.Avatar, &u.Candidate.Avatar, up)
	d.planImage(ctx, token, &u, src.AccountID, "banner", src.Banner, &u.Candidate.Banner, up)
	return u
}

func (d *ProfileDiff) planImage(ctx context.Context, token string, u *ProfileUpdate, accountID, field string, local *ProfileImage, remote **lexicon.BlobRef, up ProfileImageUploader) {
	if local == nil || local.Source.IsZero() {
		if *remote != nil {
			*remote = nil
			u.Removed = append(u.Removed, field)
		}
		return
	}

	if *remote != nil && !d.Fresh(local) {
		return
	}

	if blob := up.UploadProfileImage(ctx, token, accountID, field, local); blob != nil {
		*remote = blob
		u.Uploaded = append(u.Uploaded, field)
	}
}
