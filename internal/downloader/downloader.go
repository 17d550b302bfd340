// Package downloader fetches a fiscal year's SF133 workbooks.
//
// The URL configured for a year is either a workbook itself or a page that
// links to the agency workbooks. Links ending in .xlsx or .xls are
// resolved against the page URL and downloaded into the year's raw data
// directory. Files already present are not downloaded again.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrNoWorkbooks is returned when a page links to no workbooks.
var ErrNoWorkbooks = errors.New("no workbook links found")

// Fetcher downloads the workbooks published at url into targetDir and
// returns the paths written or already present.
type Fetcher interface {
	Fetch(ctx context.Context, url, targetDir string) ([]string, error)
}

// HTTPFetcher is the HTTP implementation of Fetcher.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher creates a fetcher with a bounded timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 5 * time.Minute},
		UserAgent: "sf133-pipeline",
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL, targetDir string) ([]string, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", targetDir, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", pageURL, err)
	}

	if isWorkbookName(base.Path) {
		dst, err := f.download(ctx, base, targetDir)
		if err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	resp, err := f.get(ctx, base.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if isWorkbookResponse(resp) {
		dst := filepath.Join(targetDir, responseFileName(resp, base))
		if err := saveBody(resp.Body, dst); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	links, err := WorkbookLinks(resp.Body, base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNoWorkbooks)
	}

	var paths []string
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		dst, err := f.download(ctx, link, targetDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// WorkbookLinks returns the distinct .xlsx/.xls links of an HTML page,
// resolved against base, in name order.
func WorkbookLinks(r io.Reader, base *url.URL) ([]*url.URL, error) {
	seen := make(map[string]bool)
	var links []*url.URL

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				sort.Slice(links, func(i, j int) bool { return links[i].String() < links[j].String() })
				return links, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil || !isWorkbookName(ref.Path) {
					continue
				}
				abs := base.ResolveReference(ref)
				if !seen[abs.String()] {
					seen[abs.String()] = true
					links = append(links, abs)
				}
			}
		}
	}
}

func (f *HTTPFetcher) download(ctx context.Context, u *url.URL, targetDir string) (string, error) {
	dst := filepath.Join(targetDir, path.Base(u.Path))
	if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
		return dst, nil
	}

	resp, err := f.get(ctx, u.String())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := saveBody(resp.Body, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return resp, nil
}

func saveBody(body io.Reader, dst string) error {
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to download %s: %w", filepath.Base(dst), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func isWorkbookName(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".xlsx" || ext == ".xls"
}

func isWorkbookResponse(resp *http.Response) bool {
	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch ct {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/vnd.ms-excel":
		return true
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	return err == nil && isWorkbookName(params["filename"])
}

func responseFileName(resp *http.Response, u *url.URL) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := filepath.Base(params["filename"]); isWorkbookName(name) {
			return name
		}
	}
	name := path.Base(u.Path)
	if !isWorkbookName(name) {
		name = "sf133.xlsx"
	}
	return name
}
