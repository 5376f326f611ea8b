package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// SkipReason explains why an attachment contributed nothing to an embed.
// The zero value means it was not skipped.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNotReady        SkipReason = "not_ready"
	SkipMissing         SkipReason = "missing"
	SkipFetchFailed     SkipReason = "fetch_failed"
	SkipOversize        SkipReason = "oversize"
	SkipUnsupportedType SkipReason = "unsupported_type"
	SkipUploadFailed    SkipReason = "upload_failed"
)

// Fetcher loads attachment bytes from the local media store or over HTTP.
// Every failure is reported as a SkipReason and logged; Fetch never returns
// an error.
type Fetcher struct {
	root       string
	fallback   fs.FS
	httpClient *http.Client
	policy     Policy
	logger     *slog.Logger
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// LocalRoot is the directory local source keys are resolved against.
	// When empty, local files are read through Fallback only.
	LocalRoot string

	// Fallback is read when a local key cannot be opened under LocalRoot.
	Fallback fs.FS

	// HTTPClient is used for remote sources. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client
}

// NewFetcher creates a Fetcher enforcing the byte ceilings of policy.
func NewFetcher(opts FetcherOptions, policy Policy, logger *slog.Logger) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		root:       opts.LocalRoot,
		fallback:   opts.Fallback,
		httpClient: client,
		policy:     policy,
		logger:     logger,
	}
}

// Fetch returns the bytes of src, validated against the ceiling for kind.
func (f *Fetcher) Fetch(ctx context.Context, src Source, kind Kind) ([]byte, SkipReason) {
	if src.IsZero() {
		f.logger.Warn("attachment has no file", "kind", kind)
		return nil, SkipMissing
	}

	ceiling := f.policy.Ceiling(kind)
	if ceiling <= 0 {
		return nil, SkipUnsupportedType
	}

	var (
		data   []byte
		reason SkipReason
	)
	if src.IsLocal() {
		data, reason = f.readLocal(src.Location())
	} else {
		data, reason = f.download(ctx, src.Location(), ceiling)
	}
	if reason != SkipNone {
		return nil, reason
	}
	if len(data) == 0 {
		f.logger.Warn("attachment file is empty", "source", src.String())
		return nil, SkipMissing
	}

	if size := int64(len(data)); size > ceiling {
		f.logger.Warn("attachment exceeds size limit",
			"source", src.String(),
			"kind", kind,
			"size", size,
			"limit", ceiling,
		)
		return nil, SkipOversize
	}
	return data, SkipNone
}

// ModTime returns the last-modified time of a local source. Remote sources
// and missing files report ok=false.
func (f *Fetcher) ModTime(src Source) (time.Time, bool) {
	if !src.IsLocal() || src.IsZero() {
		return time.Time{}, false
	}
	if f.root != "" {
		if info, err := os.Stat(f.localPath(src.Location())); err == nil {
			return info.ModTime(), true
		}
	}
	if f.fallback != nil {
		if info, err := fs.Stat(f.fallback, src.Location()); err == nil {
			return info.ModTime(), true
		}
	}
	return time.Time{}, false
}

func (f *Fetcher) localPath(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(filepath.Clean("/"+key)))
}

func (f *Fetcher) readLocal(key string) ([]byte, SkipReason) {
	if f.root != "" {
		data, err := os.ReadFile(f.localPath(key))
		if err == nil {
			return data, SkipNone
		}
		if !errors.Is(err, fs.ErrNotExist) || f.fallback == nil {
			return nil, f.localFailure(key, err)
		}
	}
	if f.fallback == nil {
		f.logger.Error("unable to read local file", "key", key)
		return nil, SkipMissing
	}

	data, err := fs.ReadFile(f.fallback, key)
	if err != nil {
		return nil, f.localFailure(key, err)
	}
	return data, SkipNone
}

func (f *Fetcher) localFailure(key string, err error) SkipReason {
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Error("file not found locally", "key", key)
		return SkipMissing
	}
	f.logger.Error("failed to read local file", "key", key, "error", err)
	return SkipFetchFailed
}

func (f *Fetcher) download(ctx context.Context, url string, ceiling int64) ([]byte, SkipReason) {
	limit := ceiling * 2

	data, err := f.get(ctx, url, limit)
	if errors.Is(err, errTooLarge) {
		f.logger.Error("remote file too large", "url", url, "limit", limit, "error", err)
		return nil, SkipOversize
	}
	if err != nil {
		f.logger.Error("failed to download remote file", "url", url, "error", err)
		return nil, SkipFetchFailed
	}
	return data, SkipNone
}

var errTooLarge = errors.New("response body exceeds limit")

func (f *Fetcher) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: declared %d bytes", errTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}
