package syndicate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pders01/synfeed/internal/storage"
)

const (
	userAgent      = "synfeed/1.0 (feed importer; github.com/pders01/synfeed)"
	defaultTimeout = 30 * time.Second
)

// Fetcher performs conditional GETs against a source.
type Fetcher struct {
	client      *http.Client
	ignoreCache bool
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{client: client}
}

// SetIgnoreCache makes every fetch unconditional.
func (f *Fetcher) SetIgnoreCache(ignore bool) {
	f.ignoreCache = ignore
}

// Fetch requests src.URL. A nil response with a nil error means the source
// answered 304 Not Modified. The caller closes the body.
func (f *Fetcher) Fetch(ctx context.Context, src *storage.Source) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml")
	if !f.ignoreCache {
		if src.ETag != "" {
			req.Header.Set("If-None-Match", src.ETag)
		}
		if src.LastModified != "" {
			req.Header.Set("If-Modified-Since", src.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		resp.Body.Close()
		return nil, nil
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode)
	}
	return resp, nil
}

// remember copies the cache validators of resp onto src.
func remember(src *storage.Source, resp *http.Response, now time.Time) {
	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}
	src.LastFetched = now
}
