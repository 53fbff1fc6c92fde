package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	appLog "eventmap/internal/log"
)

// ErrEmptyFeed is returned when the spreadsheet answers with a blank body.
var ErrEmptyFeed = errors.New("feed: empty response")

// Fetcher downloads the published CSV export. It remembers the last body
// and its validators in memory so an unchanged sheet is answered with 304
// and no re-download; nothing is written to disk.
type Fetcher struct {
	client *http.Client
	url    string

	mu           sync.Mutex
	etag         string
	lastModified string
	lastBody     []byte
}

// NewFetcher creates a Fetcher for url.
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

// FetchResult is a fetched CSV payload.
type FetchResult struct {
	Body        []byte
	NotModified bool // true if the server answered 304 and Body is the previous one
}

// Fetch downloads the feed. Any transport failure or non-OK status is
// returned as an error; there is no fallback to an earlier body.
func (f *Fetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if f.url == "" {
		return FetchResult{}, errors.New("feed: URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/csv")

	f.mu.Lock()
	if len(f.lastBody) > 0 {
		if f.etag != "" {
			req.Header.Set("If-None-Match", f.etag)
		}
		if f.lastModified != "" {
			req.Header.Set("If-Modified-Since", f.lastModified)
		}
	}
	f.mu.Unlock()

	appLog.Debug("feed fetch start", "url", redactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("feed: fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, fmt.Errorf("feed: read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return FetchResult{}, ErrEmptyFeed
		}

		f.mu.Lock()
		f.etag = resp.Header.Get("ETag")
		f.lastModified = resp.Header.Get("Last-Modified")
		f.lastBody = body
		f.mu.Unlock()

		appLog.Info("feed fetch success", "url", redactURL(f.url), "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		f.mu.Lock()
		body := f.lastBody
		f.mu.Unlock()
		if len(body) == 0 {
			return FetchResult{}, errors.New("feed: received 304 Not Modified but no previous body")
		}
		appLog.Info("feed not modified", "url", redactURL(f.url))
		return FetchResult{Body: body, NotModified: true}, nil

	default:
		return FetchResult{}, fmt.Errorf("feed: HTTP error status: %d", resp.StatusCode)
	}
}

// redactURL hides the path and query of the feed URL for logging; published
// sheet URLs act as bearer secrets.
func redactURL(raw string) string {
	const redactedSuffix = "/...(redacted)"

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "feed:/" + redactedSuffix
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String() + redactedSuffix
}
