// Package media decides which post attachments can be mirrored and fetches
// their bytes.
package media

// Kind classifies an attachment.
type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "other"
	}
}

// Source locates an attachment's bytes: either a key inside the local media
// store or a remote URL. Build one with LocalSource or RemoteSource.
type Source struct {
	local bool
	loc   string
}

// LocalSource addresses a file by its key relative to the local media root.
func LocalSource(key string) Source { return Source{local: true, loc: key} }

// RemoteSource addresses a file by URL.
func RemoteSource(url string) Source { return Source{loc: url} }

// IsLocal reports whether the bytes live in the local media store.
func (s Source) IsLocal() bool { return s.local }

// IsZero reports whether the source points nowhere.
func (s Source) IsZero() bool { return s.loc == "" }

// Location returns the local key or the remote URL.
func (s Source) Location() string { return s.loc }

func (s Source) String() string {
	if s.local {
		return "local:" + s.loc
	}
	return s.loc
}

// Attachment is one media item of a source post.
type Attachment struct {
	ID          string
	Kind        Kind
	MIMEType    string
	Ready       bool
	Source      Source
	Width       int
	Height      int
	Description string
}
