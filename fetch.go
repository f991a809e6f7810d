package xslt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Fetcher retrieves the text of a referenced document. The engine wraps
// every fetcher in a per-run cache keyed by resolved URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type FetcherFunc func(context.Context, string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// defaultFetcher reads local files and performs http(s) GET requests.
func defaultFetcher() Fetcher {
	return FetcherFunc(fetchDocument)
}

func fetchDocument(ctx context.Context, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errFetch, err)
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", fmt.Errorf("%w: %s", errFetch, err)
		}
		req.Header.Set("accept", "text/xml")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %s", errFetch, err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: fail to retrieve remote file", errFetch)
		}
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return "", fmt.Errorf("%w: %s", errFetch, err)
		}
		return string(body), nil
	default:
		body, err := os.ReadFile(location)
		if err != nil {
			return "", fmt.Errorf("%w: %s", errFetch, err)
		}
		return string(body), nil
	}
}

// fetchCache memoizes fetches for the lifetime of one transform run.
type fetchCache struct {
	fetcher Fetcher
	seen    map[string]string
}

func newFetchCache(fetcher Fetcher) *fetchCache {
	if fetcher == nil {
		fetcher = defaultFetcher()
	}
	return &fetchCache{
		fetcher: fetcher,
		seen:    make(map[string]string),
	}
}

func (f *fetchCache) Fetch(ctx context.Context, url string) (string, error) {
	if text, ok := f.seen[url]; ok {
		return text, nil
	}
	text, err := f.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	f.seen[url] = text
	return text, nil
}

// resolveURL resolves a reference against a base document URL. Plain
// paths resolve through the filesystem rules.
func resolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	if b, err := url.Parse(base); err == nil && b.Scheme != "" {
		if r, err := b.Parse(ref); err == nil {
			return r.String()
		}
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	dir := base
	if !strings.HasSuffix(dir, "/") {
		dir = filepath.Dir(dir)
	}
	return filepath.Join(dir, ref)
}
