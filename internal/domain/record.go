package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
	"github.com/blackmichael/bluesky-crosspost/internal/media"
	"github.com/blackmichael/bluesky-crosspost/internal/richtext"
)

// Contribution is what one uploaded attachment adds to an embed.
type Contribution struct {
	Blob        lexicon.BlobRef
	Alt         string
	AspectRatio *lexicon.AspectRatio
}

// AttachmentResult is the outcome of processing one selected attachment:
// either a Contribution or the reason it was skipped.
type AttachmentResult struct {
	Attachment   media.Attachment
	Contribution *Contribution
	Skip         media.SkipReason

	// Err is the upload error when Skip is SkipUploadFailed.
	Err error
}

// RecordBuilder turns source posts and profiles into records, uploading
// media along the way.
type RecordBuilder struct {
	budget      int
	localDomain string
	policy      media.Policy
	fetcher     MediaFetcher
	blobs       BlobStore
	logger      *slog.Logger
}

// NewRecordBuilder creates a RecordBuilder. budget is the post text limit in
// code points; localDomain qualifies mentions of local accounts.
func NewRecordBuilder(budget int, localDomain string, policy media.Policy, fetcher MediaFetcher, blobs BlobStore, logger *slog.Logger) *RecordBuilder {
	return &RecordBuilder{
		budget:      budget,
		localDomain: localDomain,
		policy:      policy,
		fetcher:     fetcher,
		blobs:       blobs,
		logger:      logger,
	}
}

// BuildPost assembles the post record for post. Attachments are fetched and
// uploaded one at a time in their original order; any that fail are left
// out of the embed and reported in the returned results.
func (b *RecordBuilder) BuildPost(ctx context.Context, token string, post *Post) (lexicon.PostRecord, []AttachmentResult) {
	text := richtext.Normalize(post.Text, b.budget)
	record := lexicon.PostRecord{
		Type:      lexicon.CollectionPost,
		Text:      text,
		CreatedAt: post.CreatedAt.UTC().Format(time.RFC3339),
	}

	if facets := richtext.ExtractFacets(text, post.MentionIndex(b.localDomain)); len(facets) > 0 {
		record.Facets = facets
	}

	if len(post.Attachments) == 0 {
		return record, nil
	}

	sel := media.Select(post.Attachments, b.policy)
	b.logDropped(post, sel)
	if sel.Empty() {
		return record, nil
	}

	results := make([]AttachmentResult, 0, len(sel.Chosen))
	for _, a := range sel.Chosen {
		res := b.processAttachment(ctx, token, a)
		if res.Skip != media.SkipNone {
			b.logger.Warn("skipping attachment",
				"post_id", post.ID,
				"attachment_id", a.ID,
				"reason", res.Skip,
			)
		}
		results = append(results, res)
	}

	record.Embed = buildEmbed(sel.Kind, results)
	if record.Embed == nil {
		b.logger.Warn("no media attachments could be uploaded", "post_id", post.ID)
	}
	return record, results
}

func (b *RecordBuilder) logDropped(post *Post, sel media.Selection) {
	if len(sel.Dropped) == 0 {
		return
	}
	for _, d := range sel.Dropped {
		b.logger.Info("attachment not mirrored",
			"post_id", post.ID,
			"attachment_id", d.Attachment.ID,
			"kind", d.Attachment.Kind,
			"reason", d.Reason,
		)
	}
	b.logger.Info("skipped media attachments",
		"post_id", post.ID,
		"count", len(sel.Dropped),
		"types", sel.DroppedKinds(),
	)
}

// processAttachment validates, fetches and uploads a single attachment.
func (b *RecordBuilder) processAttachment(ctx context.Context, token string, a media.Attachment) AttachmentResult {
	res := AttachmentResult{Attachment: a}

	if !a.Ready {
		res.Skip = media.SkipNotReady
		return res
	}
	if !b.policy.Supported(a.Kind, a.MIMEType) {
		res.Skip = media.SkipUnsupportedType
		return res
	}

	data, reason := b.fetcher.Fetch(ctx, a.Source, a.Kind)
	if reason != media.SkipNone {
		res.Skip = reason
		return res
	}

	mimeType, reason := b.policy.ContentType(a.Kind, a.MIMEType, data)
	if reason != media.SkipNone {
		res.Skip = reason
		return res
	}

	blob, err := b.blobs.UploadBlob(ctx, token, data, mimeType)
	if err != nil {
		b.logger.Error("blob upload failed", "attachment_id", a.ID, "error", err)
		res.Skip = media.SkipUploadFailed
		res.Err = err
		return res
	}

	res.Contribution = &Contribution{
		Blob:        blob,
		Alt:         a.Description,
		AspectRatio: lexicon.NewAspectRatio(a.Width, a.Height),
	}
	return res
}

func buildEmbed(kind media.Kind, results []AttachmentResult) *lexicon.Embed {
	var contributions []*Contribution
	for _, r := range results {
		if r.Contribution != nil {
			contributions = append(contributions, r.Contribution)
		}
	}
	if len(contributions) == 0 {
		return nil
	}

	if kind == media.KindVideo {
		c := contributions[0]
		return &lexicon.Embed{Video: &lexicon.EmbedVideo{
			Video:       c.Blob,
			Alt:         c.Alt,
			AspectRatio: c.AspectRatio,
		}}
	}

	images := make([]lexicon.EmbedImage, len(contributions))
	for i, c := range contributions {
		images[i] = lexicon.EmbedImage{
			Alt:         c.Alt,
			Image:       c.Blob,
			AspectRatio: c.AspectRatio,
		}
	}
	return &lexicon.Embed{Images: images}
}

// UploadProfileImage uploads an avatar or banner, returning nil when the
// image was skipped.
func (b *RecordBuilder) UploadProfileImage(ctx context.Context, token, accountID, field string, img *ProfileImage) *lexicon.BlobRef {
	res := b.processAttachment(ctx, token, media.Attachment{
		ID:       accountID + "/" + field,
		Kind:     media.KindImage,
		MIMEType: img.MIMEType,
		Ready:    true,
		Source:   img.Source,
	})
	if res.Contribution == nil {
		b.logger.Warn("failed to upload profile image",
			"account_id", accountID,
			"field", field,
			"reason", res.Skip,
		)
		return nil
	}
	b.logger.Info("profile image uploaded", "account_id", accountID, "field", field)
	blob := res.Contribution.Blob
	return &blob
}

// BuildProfile assembles a fresh profile record for a newly created account.
func (b *RecordBuilder) BuildProfile(ctx context.Context, token string, src *ProfileSource, createdAt time.Time) lexicon.ProfileRecord {
	rec := lexicon.ProfileRecord{
		DisplayName: src.DisplayName,
		Description: src.Description,
		CreatedAt:   createdAt.UTC().Format(time.RFC3339),
	}
	if src.Avatar != nil {
		rec.Avatar = b.UploadProfileImage(ctx, token, src.AccountID, "avatar", src.Avatar)
	}
	if src.Banner != nil {
		rec.Banner = b.UploadProfileImage(ctx, token, src.AccountID, "banner", src.Banner)
	}
	return rec
}
