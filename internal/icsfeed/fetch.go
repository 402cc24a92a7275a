// Package icsfeed reads subscribed iCalendar feeds as a read-only provider
// and renders occurrences back to iCalendar.
package icsfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/util"
)

// maxFeedBytes bounds the size of a feed body.
const maxFeedBytes = 20 << 20

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads feeds with conditional requests. Bodies are cached in
// memory keyed by URL.
type Fetcher struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher creates a fetcher from config.
func NewFetcher(cfg config.ICSConfig) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		cache:     make(map[string]cacheEntry),
	}
}

// Fetch returns the feed body. 401 and 403 map to gateway.ErrAuthExpired so
// a revoked private feed marks its account expired.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("feed URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.mu.Lock()
	cached, hasCache := f.cache[url]
	f.mu.Unlock()
	if hasCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && hasCache:
		util.Debug("Feed not modified", "url", util.RedactURL(url))
		return cached.body, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: feed returned %d", gateway.ErrAuthExpired, resp.StatusCode)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("feed exceeds %d bytes", maxFeedBytes)
	}

	f.mu.Lock()
	f.cache[url] = cacheEntry{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		body:         body,
	}
	f.mu.Unlock()

	util.Debug("Feed fetched",
		"url", util.RedactURL(url),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// Forget drops the cached body for url.
func (f *Fetcher) Forget(url string) {
	f.mu.Lock()
	delete(f.cache, url)
	f.mu.Unlock()
}
