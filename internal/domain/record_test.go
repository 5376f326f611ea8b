package domain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/media"
)

var mp4Bytes = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isommp41")

func newTestBuilder(fetcher MediaFetcher, blobs BlobStore) *RecordBuilder {
	return NewRecordBuilder(300, "mastodon.test", media.DefaultPolicy(), fetcher, blobs, discardLogger())
}

func imageAttachment(id string) media.Attachment {
	return media.Attachment{
		ID:          id,
		Kind:        media.KindImage,
		MIMEType:    "image/png",
		Ready:       true,
		Source:      media.LocalSource(id + ".png"),
		Width:       640,
		Height:      480,
		Description: "alt " + id,
	}
}

func TestBuildPostTextOnly(t *testing.T) {
	b := newTestBuilder(&fakeFetcher{}, &fakePDS{})
	post := &Post{
		ID:        "1",
		Text:      "<p>hello &amp; welcome</p>",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)),
	}

	rec, results := b.BuildPost(context.Background(), "tok", post)

	if rec.Text != "hello & welcome" {
		t.Errorf("text = %q", rec.Text)
	}
	if rec.CreatedAt != "2025-03-01T11:00:00Z" {
		t.Errorf("createdAt = %q", rec.CreatedAt)
	}
	if rec.Facets != nil {
		t.Errorf("expected no facets, got %v", rec.Facets)
	}
	if rec.Embed != nil {
		t.Errorf("expected no embed")
	}
	if results != nil {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestBuildPostFacetsAndMentions(t *testing.T) {
	b := newTestBuilder(&fakeFetcher{}, &fakePDS{})
	post := &Post{
		ID:   "2",
		Text: "hi @alice@example.social see https://example.com/page.",
		Mentions: []MentionedAccount{
			{Username: "alice", Acct: "alice@example.social", URL: "https://example.social/@alice"},
		},
	}

	rec, _ := b.BuildPost(context.Background(), "tok", post)

	if len(rec.Facets) != 2 {
		t.Fatalf("expected 2 facets, got %d: %+v", len(rec.Facets), rec.Facets)
	}
	if got := rec.Facets[0].URI(); got != "https://example.com/page" {
		t.Errorf("first facet uri = %q", got)
	}
	if got := rec.Facets[1].URI(); got != "https://example.social/@alice" {
		t.Errorf("second facet uri = %q", got)
	}
}

func TestBuildPostUploadFailureSkipsOnlyThatAttachment(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{
		"a.png": pngBytes("a"),
		"b.png": pngBytes("b"),
		"c.png": pngBytes("c"),
	}}
	pds := &fakePDS{failUploads: map[string]bool{string(pngBytes("b")): true}}
	b := newTestBuilder(fetcher, pds)

	post := &Post{ID: "3", Text: "pics", Attachments: []media.Attachment{
		imageAttachment("a"), imageAttachment("b"), imageAttachment("c"),
	}}
	rec, results := b.BuildPost(context.Background(), "tok", post)

	if rec.Embed == nil || len(rec.Embed.Images) != 2 {
		t.Fatalf("expected 2 embedded images, got %+v", rec.Embed)
	}
	if got := rec.Embed.Images[0].Alt; got != "alt a" {
		t.Errorf("first image alt = %q", got)
	}
	if got := rec.Embed.Images[1].Alt; got != "alt c" {
		t.Errorf("second image alt = %q", got)
	}
	if ar := rec.Embed.Images[0].AspectRatio; ar == nil || ar.Width != 640 || ar.Height != 480 {
		t.Errorf("aspect ratio = %+v", ar)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].Skip != media.SkipUploadFailed || results[1].Err == nil {
		t.Errorf("second result = %+v", results[1])
	}
	if results[0].Contribution == nil || results[2].Contribution == nil {
		t.Errorf("expected first and third to succeed")
	}
}

func TestBuildPostVideoWins(t *testing.T) {
	video := media.Attachment{
		ID:       "v",
		Kind:     media.KindVideo,
		MIMEType: "video/mp4",
		Ready:    true,
		Source:   media.RemoteSource("https://cdn.test/v.mp4"),
	}
	fetcher := &fakeFetcher{data: map[string][]byte{
		"a.png":                  pngBytes("a"),
		"b.png":                  pngBytes("b"),
		"https://cdn.test/v.mp4": mp4Bytes,
	}}
	pds := &fakePDS{}
	b := newTestBuilder(fetcher, pds)

	post := &Post{ID: "4", Attachments: []media.Attachment{imageAttachment("a"), video, imageAttachment("b")}}
	rec, results := b.BuildPost(context.Background(), "tok", post)

	if rec.Embed == nil || rec.Embed.Video == nil {
		t.Fatalf("expected video embed, got %+v", rec.Embed)
	}
	if len(rec.Embed.Images) != 0 {
		t.Errorf("expected no images alongside the video")
	}
	if rec.Embed.Video.AspectRatio != nil {
		t.Errorf("expected no aspect ratio without dimensions")
	}
	if len(results) != 1 || len(pds.uploads) != 1 {
		t.Errorf("expected a single upload, got %d results and %d uploads", len(results), len(pds.uploads))
	}
}

func TestBuildPostFiveImagesKeepsFirstFour(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{}}
	var atts []media.Attachment
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		fetcher.data[id+".png"] = pngBytes(id)
		atts = append(atts, imageAttachment(id))
	}
	b := newTestBuilder(fetcher, &fakePDS{})

	rec, _ := b.BuildPost(context.Background(), "tok", &Post{ID: "5", Attachments: atts})

	if rec.Embed == nil || len(rec.Embed.Images) != 4 {
		t.Fatalf("expected 4 images, got %+v", rec.Embed)
	}
	for i, want := range []string{"alt a", "alt b", "alt c", "alt d"} {
		if got := rec.Embed.Images[i].Alt; got != want {
			t.Errorf("image %d alt = %q, want %q", i, got, want)
		}
	}
}

func TestBuildPostSkipReasons(t *testing.T) {
	tiff := imageAttachment("t")
	tiff.MIMEType = "image/tiff"
	missing := imageAttachment("m")
	pending := imageAttachment("p")
	pending.Ready = false

	b := newTestBuilder(&fakeFetcher{}, &fakePDS{})
	rec, results := b.BuildPost(context.Background(), "tok", &Post{
		ID:          "6",
		Attachments: []media.Attachment{tiff, missing, pending},
	})

	if rec.Embed != nil {
		t.Fatalf("expected no embed, got %+v", rec.Embed)
	}
	want := []media.SkipReason{media.SkipUnsupportedType, media.SkipMissing}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Skip != want[i] {
			t.Errorf("result %d skip = %q, want %q", i, r.Skip, want[i])
		}
	}
}

func TestBuildPostTruncatesLongText(t *testing.T) {
	b := newTestBuilder(&fakeFetcher{}, &fakePDS{})
	rec, _ := b.BuildPost(context.Background(), "tok", &Post{ID: "7", Text: strings.Repeat("é", 400)})

	if n := len([]rune(rec.Text)); n != 300 {
		t.Fatalf("expected 300 code points, got %d", n)
	}
	if !strings.HasSuffix(rec.Text, "...") {
		t.Errorf("expected ellipsis suffix")
	}
}

func TestBuildProfile(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{"avatar.png": pngBytes("av")}}
	pds := &fakePDS{}
	b := newTestBuilder(fetcher, pds)

	src := &ProfileSource{
		AccountID:   "42",
		DisplayName: "Alice",
		Description: "hello",
		Avatar:      &ProfileImage{Source: media.LocalSource("avatar.png"), MIMEType: "image/png"},
		Banner:      &ProfileImage{Source: media.LocalSource("gone.png"), MIMEType: "image/png"},
	}
	rec := b.BuildProfile(context.Background(), "tok", src, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	if rec.DisplayName != "Alice" || rec.Description != "hello" {
		t.Errorf("unexpected text fields %+v", rec)
	}
	if rec.Avatar == nil || rec.Avatar.Ref.Link != "cid-"+string(pngBytes("av")) {
		t.Errorf("avatar = %+v", rec.Avatar)
	}
	if rec.Banner != nil {
		t.Errorf("expected banner to be skipped")
	}
	if rec.CreatedAt != "2025-01-02T03:04:05Z" {
		t.Errorf("createdAt = %q", rec.CreatedAt)
	}
}
