package bluesky

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

const (
	defaultPDS = "https://bsky.social"
	userAgent  = "bluesky-crosspost/1.0"
)

// Client is a minimal AT Protocol XRPC client. It holds no session state:
// every authenticated call takes the bearer token of the invocation making it.
type Client struct {
	pds        string
	httpClient *http.Client
}

// NewClient creates a new API client for the given PDS base URL. If pds is
// empty, it defaults to https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: strings.TrimRight(pds, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Authenticate creates a session with an identifier (handle or DID) and an
// app password, returning the access token and DID.
func (c *Client) Authenticate(ctx context.Context, identifier, password string) (lexicon.Session, error) {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp lexicon.Session
	if err := c.post(ctx, "com.atproto.server.createSession", authNone, body, &resp); err != nil {
		return lexicon.Session{}, fmt.Errorf("create session: %w", err)
	}
	return resp, nil
}

// CreateRecord writes a new record and returns its AT-URI and CID.
func (c *Client) CreateRecord(ctx context.Context, token string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error) {
	var resp lexicon.RecordRef
	if err := c.post(ctx, "com.atproto.repo.createRecord", bearer(token), in, &resp); err != nil {
		return lexicon.RecordRef{}, fmt.Errorf("create record: %w", err)
	}
	return resp, nil
}

// PutRecord creates or replaces the record at in.RKey.
func (c *Client) PutRecord(ctx context.Context, token string, in lexicon.WriteRecordInput) (lexicon.RecordRef, error) {
	var resp lexicon.RecordRef
	if err := c.post(ctx, "com.atproto.repo.putRecord", bearer(token), in, &resp); err != nil {
		return lexicon.RecordRef{}, fmt.Errorf("put record: %w", err)
	}
	return resp, nil
}

// GetRecord decodes the value of the record at uri into out. It returns an
// error wrapping ErrNotFound when the record does not exist.
func (c *Client) GetRecord(ctx context.Context, token string, uri lexicon.ATURI, out any) error {
	q := url.Values{}
	q.Set("repo", uri.Repo)
	q.Set("collection", uri.Collection)
	q.Set("rkey", uri.RKey)

	var resp struct {
		URI   string          `json:"uri"`
		Value json.RawMessage `json:"value"`
	}
	if err := c.get(ctx, "com.atproto.repo.getRecord", bearer(token), q, &resp); err != nil {
		return fmt.Errorf("get record: %w", err)
	}
	if err := json.Unmarshal(resp.Value, out); err != nil {
		return fmt.Errorf("unmarshal record value: %w", err)
	}
	return nil
}

// DeleteRecord removes the record at uri.
func (c *Client) DeleteRecord(ctx context.Context, token string, uri lexicon.ATURI) error {
	body := deleteRecordRequest{
		Repo:       uri.Repo,
		Collection: uri.Collection,
		RKey:       uri.RKey,
	}

	var resp json.RawMessage
	if err := c.post(ctx, "com.atproto.repo.deleteRecord", bearer(token), body, &resp); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// UploadBlob uploads raw bytes as a blob and returns a reference.
// The blob will be deleted if not referenced in a record within a time window.
func (c *Client) UploadBlob(ctx context.Context, token string, data []byte, mimeType string) (lexicon.BlobRef, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "com.atproto.repo.uploadBlob", nil, bytes.NewReader(data))
	if err != nil {
		return lexicon.BlobRef{}, err
	}
	req.Header.Set("Content-Type", mimeType)
	bearer(token).apply(req)

	var result uploadBlobResponse
	if err := c.do(req, &result); err != nil {
		return lexicon.BlobRef{}, fmt.Errorf("upload blob: %w", err)
	}
	return result.Blob, nil
}

// CreateInviteCode asks the PDS for a single-use invite code using the admin
// password.
func (c *Client) CreateInviteCode(ctx context.Context, adminPassword string, useCount int) (string, error) {
	body := map[string]int{"useCount": useCount}

	var resp struct {
		Code string `json:"code"`
	}
	if err := c.post(ctx, "com.atproto.server.createInviteCode", basicAdmin(adminPassword), body, &resp); err != nil {
		return "", fmt.Errorf("create invite code: %w", err)
	}
	return resp.Code, nil
}

// CreateAccount registers a new account on the PDS.
func (c *Client) CreateAccount(ctx context.Context, email, handle, password, inviteCode string) (lexicon.Session, error) {
	body := map[string]string{
		"email":      email,
		"handle":     handle,
		"password":   password,
		"inviteCode": inviteCode,
	}

	var resp lexicon.Session
	if err := c.post(ctx, "com.atproto.server.createAccount", authNone, body, &resp); err != nil {
		return lexicon.Session{}, fmt.Errorf("create account: %w", err)
	}
	return resp, nil
}

// authHeader is the Authorization header value of a request, if any.
type authHeader string

const authNone authHeader = ""

func bearer(token string) authHeader { return authHeader("Bearer " + token) }

func basicAdmin(password string) authHeader {
	return authHeader("Basic " + base64.StdEncoding.EncodeToString([]byte("admin:"+password)))
}

func (a authHeader) apply(req *http.Request) {
	if a != authNone {
		req.Header.Set("Authorization", string(a))
	}
}

func (c *Client) post(ctx context.Context, method string, auth authHeader, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, method, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	auth.apply(req)

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, method string, auth authHeader, query url.Values, result any) error {
	req, err := c.newRequest(ctx, http.MethodGet, method, query, nil)
	if err != nil {
		return err
	}
	auth.apply(req)

	return c.do(req, result)
}

func (c *Client) newRequest(ctx context.Context, httpMethod, method string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.pds + "/xrpc/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newUpstreamError(req, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
}

type uploadBlobResponse struct {
	Blob lexicon.BlobRef `json:"blob"`
}
