package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

const (
	// DefaultLoadTimeout bounds a single image load, fetch and decode included.
	DefaultLoadTimeout = 8 * time.Second

	// DefaultMaxImageBytes caps how much of a response body is decoded.
	DefaultMaxImageBytes = 20 << 20

	maxRedirects = 10
)

// ErrLoadFailed is wrapped by every error a Loader returns. Network errors,
// non-2xx responses, decode errors and timeouts are deliberately not told
// apart: callers only need to know that no bitmap is available.
var ErrLoadFailed = errors.New("image load failed")

// Loader obtains a decoded bitmap for an image URL.
type Loader interface {
	Load(ctx context.Context, rawURL string) (image.Image, error)
}

// LoaderOptions configures an HTTPLoader.
type LoaderOptions struct {
	// Timeout bounds each Load. Zero selects DefaultLoadTimeout.
	Timeout time.Duration

	// BaseURL resolves origin-relative URLs such as "/posters/a.jpg".
	// When empty, relative URLs are read from RootDir instead.
	BaseURL string

	// RootDir is the directory relative URLs are resolved against when no
	// BaseURL is configured. Defaults to the working directory.
	RootDir string

	// MaxBytes caps the decoded response size. Zero selects DefaultMaxImageBytes.
	MaxBytes int64

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTPLoader fetches images anonymously: no cookies, no credentials and no
// Referer header, so the request matches an anonymous cross-origin image
// request. It performs no retries.
type HTTPLoader struct {
	client   *http.Client
	baseURL  *url.URL
	rootDir  string
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPLoader creates an HTTPLoader.
//
// # Errors
//
//   - Returns error if BaseURL is set but is not an absolute http(s) URL
func NewHTTPLoader(opts LoaderOptions) (*HTTPLoader, error) {
	l := &HTTPLoader{
		rootDir:  opts.RootDir,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
	}
	if l.timeout <= 0 {
		l.timeout = DefaultLoadTimeout
	}
	if l.maxBytes <= 0 {
		l.maxBytes = DefaultMaxImageBytes
	}
	if l.rootDir == "" {
		l.rootDir = "."
	}

	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base url: %w", err)
		}
		if base.Scheme != "http" && base.Scheme != "https" {
			return nil, fmt.Errorf("base url %q must be absolute http(s)", opts.BaseURL)
		}
		l.baseURL = base
	}

	l.client = &http.Client{
		Transport: opts.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			req.Header.Del("Referer")
			return nil
		},
	}
	return l, nil
}

// Load fetches and decodes rawURL.
//
// Supported references:
//   - absolute http(s) URLs
//   - protocol-relative URLs ("//cdn.example/a.jpg"), fetched over https
//     unless a BaseURL supplies the scheme
//   - relative URLs, resolved against BaseURL, or read from RootDir when
//     no BaseURL is configured; paths leaving RootDir are rejected
//
// Other schemes, file:// included, are rejected.
//
// Every failure wraps ErrLoadFailed.
func (l *HTTPLoader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	ref := strings.TrimSpace(rawURL)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty url", ErrLoadFailed)
	}

	target, err := l.resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	switch target.Scheme {
	case "http", "https":
		return l.fetch(ctx, target)
	case "":
		path, err := l.localPath(target.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		return l.open(path)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrLoadFailed, target.Scheme)
	}
}

func (l *HTTPLoader) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Scheme != "" {
		return u, nil
	}
	if l.baseURL != nil {
		return l.baseURL.ResolveReference(u), nil
	}
	if u.Host != "" {
		u.Scheme = "https"
	}
	return u, nil
}

// localPath maps an origin-relative path into rootDir. A leading "/" is the
// root itself; anything that would resolve outside it is an error.
func (l *HTTPLoader) localPath(p string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(p, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q is outside the image root", p)
	}
	return filepath.Join(l.rootDir, rel), nil
}

func (l *HTTPLoader) fetch(ctx context.Context, target *url.URL) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %w", ErrLoadFailed, err)
	}
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/gif,image/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch image: %w", ErrLoadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: image download failed: %s", ErrLoadFailed, resp.Status)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %w", ErrLoadFailed, err)
	}
	return img, nil
}

func (l *HTTPLoader) open(path string) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open image: %w", ErrLoadFailed, err)
	}
	return img, nil
}

// DefaultImageCacheSize is how many decoded images an ImageCache keeps when
// no size is given.
const DefaultImageCacheSize = 16

// ImageCache provides thread-safe caching of decoded images in front of a
// Loader.
//
// Images are keyed by normalized URL, so "a.jpg?v=1" and "a.jpg?v=2" share an
// entry. Failed loads are not cached.
//
// # Memory Management
//
// At most size images are kept; the least recently used one is dropped when
// a new image arrives. A decoded poster can take tens of megabytes, so keep
// the size small.
type ImageCache struct {
	loader Loader
	images *lru.Cache[string, image.Image]
}

// NewImageCache creates an empty image cache reading through loader and
// holding at most size images. A non-positive size selects
// DefaultImageCacheSize.
func NewImageCache(loader Loader, size int) *ImageCache {
	if size <= 0 {
		size = DefaultImageCacheSize
	}
	images, err := lru.New[string, image.Image](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &ImageCache{loader: loader, images: images}
}

// Load returns the cached image for rawURL or loads it through the
// underlying Loader. ImageCache itself satisfies Loader.
func (c *ImageCache) Load(ctx context.Context, rawURL string) (image.Image, error) {
	key := NormalizeURL(rawURL)
	if img, ok := c.images.Get(key); ok {
		return img, nil
	}

	img, err := c.loader.Load(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.images.Add(key, img)
	return img, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.images.Purge()
}

// Evict removes the image cached for rawURL, if any.
func (c *ImageCache) Evict(rawURL string) {
	c.images.Remove(NormalizeURL(rawURL))
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	return c.images.Len()
}
