package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
)

const userAgent = "bluesky-crosspost/1.0"

// ErrNotMirrorable is returned for reblogs and statuses that are not public.
var ErrNotMirrorable = errors.New("status is not mirrorable")

// APIError is returned for any non-2xx response from the REST API.
type APIError struct {
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mastodon API error %s (status %d): %s", e.Path, e.Status, e.Body)
}

// Client is a minimal Mastodon REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the instance at baseURL. token is an
// application access token with read scope.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetStatus fetches a status by id.
func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id), &s); err != nil {
		return nil, fmt.Errorf("get status %s: %w", id, err)
	}
	return &s, nil
}

// GetAccount fetches an account by id.
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var a Account
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(id), &a); err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &a, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Source loads posts and profiles through a Client. It implements
// jobs.Source.
type Source struct {
	client    *Client
	converter Converter
}

// NewSource creates a Source.
func NewSource(client *Client, converter Converter) *Source {
	return &Source{client: client, converter: converter}
}

// Post loads and converts a status. Statuses that should not be mirrored
// yield ErrNotMirrorable.
func (s *Source) Post(ctx context.Context, postID string) (*domain.Post, error) {
	status, err := s.client.GetStatus(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !Mirrorable(status) {
		return nil, fmt.Errorf("status %s: %w", postID, ErrNotMirrorable)
	}
	return s.converter.Post(status), nil
}

// Profile loads and converts an account.
func (s *Source) Profile(ctx context.Context, accountID string) (*domain.ProfileSource, error) {
	account, err := s.client.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.converter.Profile(account), nil
}
