package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ashureev/aria/internal/domain"
)

// maxAssetSize bounds a single fetched response body.
const maxAssetSize = 32 << 20

// Origin is the network behind the cache. A transport failure is an error;
// any HTTP status, including 404 and 500, is a response.
type Origin interface {
	Fetch(ctx context.Context, r *http.Request) (*domain.CachedAsset, error)
}

// FSOrigin serves responses from a file system, typically the embedded dist/.
type FSOrigin struct {
	fsys fs.FS
}

// NewFSOrigin creates an origin backed by fsys.
func NewFSOrigin(fsys fs.FS) *FSOrigin {
	return &FSOrigin{fsys: fsys}
}

// Fetch reads the file named by the request path.
func (o *FSOrigin) Fetch(ctx context.Context, r *http.Request) (*domain.CachedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	data, err := fs.ReadFile(o.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isDirErr(o.fsys, name) {
			return notFound(r), nil
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &domain.CachedAsset{
		URL:      cacheKey(r),
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {contentType}},
		Body:     data,
		StoredAt: time.Now(),
	}, nil
}

func isDirErr(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}

func notFound(r *http.Request) *domain.CachedAsset {
	body := []byte("404 page not found\n")
	return &domain.CachedAsset{
		URL:    cacheKey(r),
		Status: http.StatusNotFound,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   body,
	}
}

// HTTPOrigin forwards requests to an upstream server.
type HTTPOrigin struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPOrigin creates an origin that resolves request paths against baseURL.
// A nil client uses http.DefaultClient.
func NewHTTPOrigin(baseURL string, client *http.Client) (*HTTPOrigin, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin url %q must be http or https", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOrigin{base: base, client: client}, nil
}

// Fetch performs the request against the upstream and buffers the response.
func (o *HTTPOrigin) Fetch(ctx context.Context, r *http.Request) (*domain.CachedAsset, error) {
	target := o.base.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != nil && method != http.MethodGet && method != http.MethodHead {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, h := range []string{"Accept", "Accept-Language", "Content-Type", "User-Agent"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	header := resp.Header.Clone()
	// The body is already decoded and re-framed when served.
	header.Del("Content-Encoding")
	header.Del("Content-Length")
	header.Del("Transfer-Encoding")

	return &domain.CachedAsset{
		URL:      cacheKey(r),
		Status:   resp.StatusCode,
		Header:   header,
		Body:     data,
		StoredAt: time.Now(),
	}, nil
}

// cacheKey is the exact URL used for matching: path plus raw query.
func cacheKey(r *http.Request) string {
	key := r.URL.Path
	if key == "" {
		key = "/"
	}
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}
