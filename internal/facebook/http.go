// Package facebook contains the clients used to talk to Facebook: scraping
// public reel pages for their video streams, listing the pages managed by
// the configured user via the Graph API, and downloading remote media.
package facebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var (
	log = logger.Get("Facebook")

	ErrInvalidURL = errors.New("invalid facebook url")
	ErrNoStream   = errors.New("no playable stream found")
	ErrHTTPStatus = errors.New("unexpected http status")
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type (
	Config struct {
		UserAgent      string        `yaml:"user_agent" env:"FB_USER_AGENT"`
		Cookie         string        `yaml:"cookie" env:"FB_COOKIE"`
		UserToken      string        `yaml:"user_token" env:"FB_USER_TOKEN"`
		GraphBaseURL   string        `yaml:"graph_base_url" env:"FB_GRAPH_BASE_URL" env-default:"https://graph.facebook.com"`
		ProxyURL       string        `yaml:"proxy_url" env:"FB_PROXY_URL"`
		RequestTimeout time.Duration `yaml:"request_timeout" env:"FB_REQUEST_TIMEOUT" env-default:"30s"`
		MaxRetries     int           `yaml:"max_retries" env:"FB_MAX_RETRIES" env-default:"2"`
	}

	// Downloader fetches remote media (reel streams, page and reel
	// thumbnails) over plain HTTP.
	Downloader struct {
		httpClient *http.Client
		config     Config
	}
)

func (config Config) userAgent() string {
	if config.UserAgent == "" {
		return defaultUserAgent
	}

	return config.UserAgent
}

func newHTTPClient(config Config) *http.Client {
	client := &http.Client{Timeout: config.RequestTimeout}
	if strings.TrimSpace(config.ProxyURL) == "" {
		return client
	}

	parsed, err := url.Parse(config.ProxyURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		log.Emit(logger.WARNING, "Ignoring malformed proxy URL %q\n", config.ProxyURL)
		return client
	}

	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return client
	}

	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(parsed)
	client.Transport = transport
	return client
}

func NewDownloader(config Config) *Downloader {
	// Media downloads can legitimately take longer than a page request
	client := newHTTPClient(config)
	client.Timeout = 0

	return &Downloader{httpClient: client, config: config}
}

// Open performs a GET against the URL, returning the body for the caller
// to consume and close. Any non-200 response is an error.
func (d *Downloader) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.config.userAgent())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrHTTPStatus, target, resp.StatusCode)
	}

	return resp.Body, nil
}

// DownloadToPath streams the resource at the URL to the output path, returning
// the number of bytes written. The content is written to a temporary sibling
// file and renamed in to place once complete, so a failed download never
// leaves a partial file at the output path.
func (d *Downloader) DownloadToPath(ctx context.Context, target string, outputPath string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		n, err := d.downloadOnce(ctx, target, outputPath)
		if err == nil {
			return n, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == d.config.MaxRetries {
			break
		}

		log.Emit(logger.WARNING, "Download of %s failed (attempt %d): %v... retrying\n", target, attempt+1, err)
		if err := waitBackoff(ctx, time.Duration(attempt+1)*time.Second); err != nil {
			return 0, err
		}
	}

	return 0, lastErr
}

func (d *Downloader) downloadOnce(ctx context.Context, target string, outputPath string) (int64, error) {
	body, err := d.Open(ctx, target)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	partial := outputPath + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return 0, err
	}

	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return 0, err
	}

	return n, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Client errors (4xx) will not resolve themselves on retry
	if errors.Is(err, ErrHTTPStatus) {
		return strings.Contains(err.Error(), "returned 5")
	}

	return true
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
