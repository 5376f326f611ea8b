package lexicon

import "errors"

// ErrRecordNotFound is matched (via errors.Is) by lookups of records that do
// not exist.
var ErrRecordNotFound = errors.New("record not found")

// Session is the output of com.atproto.server.createSession and
// com.atproto.server.createAccount.
type Session struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// RecordRef identifies a stored record version.
type RecordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// WriteRecordInput is the body of createRecord and putRecord. RKey is
// omitted for createRecord when the PDS should pick one.
type WriteRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey,omitempty"`
	Record     any    `json:"record"`
}
