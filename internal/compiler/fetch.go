package compiler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// HTTPFetcher resolves imports over HTTP and HTTPS.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &InvalidURLError{URL: rawURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &InvalidURLError{URL: rawURL}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{URL: rawURL, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: rawURL, Reason: err.Error()}
	}
	return string(body), nil
}

// FileFetcher resolves imports against a local base directory. URL-shaped
// references are reduced to their final path element; plain paths are taken
// relative to the base directory as written.
type FileFetcher struct {
	BaseDir string
}

func NewFileFetcher(baseDir string) *FileFetcher {
	return &FileFetcher{BaseDir: baseDir}
}

func (f *FileFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	name := rawURL
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", &InvalidURLError{URL: rawURL}
		}
		name = path.Base(u.Path)
	}

	data, err := os.ReadFile(filepath.Join(f.BaseDir, name))
	if err != nil {
		return "", &FetchError{URL: rawURL, Reason: err.Error()}
	}
	return string(data), nil
}

// StaticFetcher serves imports from an in-memory map, keyed by URL.
type StaticFetcher map[string]string

func (f StaticFetcher) Fetch(_ context.Context, url string) (string, error) {
	content, ok := f[url]
	if !ok {
		return "", &FetchError{URL: url, Reason: "not found"}
	}
	return content, nil
}

// RejectFetcher refuses every import. Serving contexts use it where imports
// are expected to be pre-resolved.
type RejectFetcher struct{}

func (RejectFetcher) Fetch(_ context.Context, url string) (string, error) {
	return "", &FetchError{URL: url, Reason: "imports are not supported in API mode"}
}
