package bluesky

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

// ErrNotFound is matched by errors for records that do not exist.
var ErrNotFound = lexicon.ErrRecordNotFound

// UnexpectedUpstreamError is returned for any non-2xx XRPC response.
type UnexpectedUpstreamError struct {
	Method string
	Status int
	Body   string

	// Name is the XRPC error name from the response body, when present.
	Name string
}

func (e *UnexpectedUpstreamError) Error() string {
	return fmt.Sprintf("API error %s (status %d): %s", e.Method, e.Status, e.Body)
}

// Is lets errors.Is match ErrNotFound for missing records.
func (e *UnexpectedUpstreamError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.Status == http.StatusNotFound || e.Name == "RecordNotFound"
}

func newUpstreamError(req *http.Request, status int, body []byte) *UnexpectedUpstreamError {
	var xrpc struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &xrpc)

	return &UnexpectedUpstreamError{
		Method: strings.TrimPrefix(req.URL.Path, "/xrpc/"),
		Status: status,
		Body:   string(body),
		Name:   xrpc.Error,
	}
}
