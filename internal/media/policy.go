package media

import (
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Policy holds the target network's media constraints.
type Policy struct {
	ImageLimit    int      `toml:"image_limit" validate:"min=1,max=4"`
	ImageTypes    []string `toml:"image_types" validate:"min=1,dive,required"`
	VideoTypes    []string `toml:"video_types" validate:"dive,required"`
	MaxImageBytes int64    `toml:"max_image_bytes" validate:"min=1"`
	MaxVideoBytes int64    `toml:"max_video_bytes" validate:"min=1"`
}

// DefaultPolicy returns the limits Bluesky enforces for post embeds.
func DefaultPolicy() Policy {
	return Policy{
		ImageLimit:    4,
		ImageTypes:    []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		VideoTypes:    []string{"video/mp4"},
		MaxImageBytes: 1_000_000,
		MaxVideoBytes: 50_000_000,
	}
}

// Ceiling returns the byte limit for kind, or 0 for kinds that cannot be
// embedded.
func (p Policy) Ceiling(kind Kind) int64 {
	switch kind {
	case KindImage:
		return p.MaxImageBytes
	case KindVideo:
		return p.MaxVideoBytes
	default:
		return 0
	}
}

// Supported reports whether mimeType may be uploaded as kind.
func (p Policy) Supported(kind Kind, mimeType string) bool {
	switch kind {
	case KindImage:
		return slices.Contains(p.ImageTypes, mimeType)
	case KindVideo:
		return slices.Contains(p.VideoTypes, mimeType)
	default:
		return false
	}
}

// ContentType checks the declared type and the sniffed content of data
// against the allowed set for kind and returns the MIME type to upload with.
// Content the sniffer cannot identify is trusted to be the declared type.
func (p Policy) ContentType(kind Kind, declared string, data []byte) (string, SkipReason) {
	if !p.Supported(kind, declared) {
		return "", SkipUnsupportedType
	}

	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") || detected.Is(declared) {
		return declared, SkipNone
	}

	actual := detected.String()
	if i := strings.IndexByte(actual, ';'); i >= 0 {
		actual = actual[:i]
	}
	if p.Supported(kind, actual) {
		return actual, SkipNone
	}
	return "", SkipUnsupportedType
}
