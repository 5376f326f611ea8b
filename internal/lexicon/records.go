// Package lexicon holds the AT Protocol record shapes this service writes.
package lexicon

import (
	"encoding/json"
	"fmt"
)

// Collection NSIDs.
const (
	CollectionPost    = "app.bsky.feed.post"
	CollectionProfile = "app.bsky.actor.profile"

	// ProfileRKey is the record key of an account's single profile record.
	ProfileRKey = "self"
)

const (
	typeEmbedImages = "app.bsky.embed.images"
	typeEmbedVideo  = "app.bsky.embed.video"
	typeFacetLink   = "app.bsky.richtext.facet#link"
)

// BlobRef represents an AT Protocol blob reference for uploaded content. It is
// forwarded into records exactly as the PDS returned it: a decoded reference
// marshals back to its original JSON, including legacy {"cid", "mimeType"}
// refs and fields not modeled here.
type BlobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`

	raw json.RawMessage
}

// blobRefFields breaks the MarshalJSON/UnmarshalJSON recursion.
type blobRefFields BlobRef

// UnmarshalJSON decodes the known fields and keeps the original bytes.
func (b *BlobRef) UnmarshalJSON(data []byte) error {
	var f blobRefFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*b = BlobRef(f)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the original bytes of a decoded reference, or the
// known fields of one built in code.
func (b BlobRef) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	return json.Marshal(blobRefFields(b))
}

// ByteSlice is a half-open byte range over the UTF-8 encoding of post text.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is a single annotation attached to a facet.
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

// Facet annotates a byte range of post text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// NewLinkFacet returns a facet linking text[start:end] to uri.
func NewLinkFacet(start, end int, uri string) Facet {
	return Facet{
		Index:    ByteSlice{ByteStart: start, ByteEnd: end},
		Features: []FacetFeature{{Type: typeFacetLink, URI: uri}},
	}
}

// URI returns the target of the facet's first link feature.
func (f Facet) URI() string {
	for _, feat := range f.Features {
		if feat.Type == typeFacetLink {
			return feat.URI
		}
	}
	return ""
}

// AspectRatio is the intrinsic width:height of an embedded image or video.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewAspectRatio returns nil unless both dimensions are positive.
func NewAspectRatio(width, height int) *AspectRatio {
	if width <= 0 || height <= 0 {
		return nil
	}
	return &AspectRatio{Width: width, Height: height}
}

// EmbedImage is one image of an images embed.
type EmbedImage struct {
	Alt         string       `json:"alt"`
	Image       BlobRef      `json:"image"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// Embed is the media attached to a post: either up to four images or a single
// video. Exactly one of Images and Video is set.
type Embed struct {
	Images []EmbedImage
	Video  *EmbedVideo
}

// EmbedVideo is the body of a video embed.
type EmbedVideo struct {
	Video       BlobRef      `json:"video"`
	Alt         string       `json:"alt,omitempty"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// MarshalJSON writes the embed with its $type discriminator.
func (e Embed) MarshalJSON() ([]byte, error) {
	switch {
	case e.Video != nil:
		return json.Marshal(struct {
			Type string `json:"$type"`
			EmbedVideo
		}{typeEmbedVideo, *e.Video})
	case len(e.Images) > 0:
		return json.Marshal(struct {
			Type   string       `json:"$type"`
			Images []EmbedImage `json:"images"`
		}{typeEmbedImages, e.Images})
	default:
		return nil, fmt.Errorf("embed has no media")
	}
}

// UnmarshalJSON reads an images or video embed.
func (e *Embed) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case typeEmbedImages:
		var body struct {
			Images []EmbedImage `json:"images"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*e = Embed{Images: body.Images}
	case typeEmbedVideo:
		var v EmbedVideo
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Embed{Video: &v}
	default:
		return fmt.Errorf("unsupported embed type %q", head.Type)
	}
	return nil
}

// PostRecord is the record body for app.bsky.feed.post.
type PostRecord struct {
	Type      string  `json:"$type"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
	Facets    []Facet `json:"facets,omitempty"`
	Embed     *Embed  `json:"embed,omitempty"`
}
