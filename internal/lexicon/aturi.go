package lexicon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsableURI is returned for strings that are not at://repo/collection/rkey.
var ErrUnparsableURI = errors.New("unparsable AT-URI")

// ATURI addresses a single record in a repo.
type ATURI struct {
	Repo       string
	Collection string
	RKey       string
}

// ParseATURI parses at://<repo>/<collection>/<rkey>. Anything other than
// exactly three non-empty segments after the scheme is rejected.
func ParseATURI(s string) (ATURI, error) {
	rest, ok := strings.CutPrefix(s, "at://")
	if !ok {
		return ATURI{}, fmt.Errorf("%w: %q", ErrUnparsableURI, s)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return ATURI{}, fmt.Errorf("%w: %q", ErrUnparsableURI, s)
	}
	for _, p := range parts {
		if p == "" {
			return ATURI{}, fmt.Errorf("%w: %q", ErrUnparsableURI, s)
		}
	}
	return ATURI{Repo: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

func (u ATURI) String() string {
	return fmt.Sprintf("at://%s/%s/%s", u.Repo, u.Collection, u.RKey)
}
