package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// maxPageBytes bounds how much of a reel page is read when scraping.
const maxPageBytes = 16 << 20

var (
	sdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"browser_native_sd_url":"(.*?)"`),
		regexp.MustCompile(`"playable_url":"(.*?)"`),
		regexp.MustCompile(`sd_src\s*:\s*"([^"]*)"`),
		regexp.MustCompile(`"src":"[^"]*(https://[^"]*)`),
	}
	hdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"browser_native_hd_url":"(.*?)"`),
		regexp.MustCompile(`"playable_url_quality_hd":"(.*?)"`),
		regexp.MustCompile(`hd_src\s*:\s*"([^"]*)"`),
	}
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`<meta\sname="description"\scontent="(.*?)"`),
		regexp.MustCompile(`<title>(.*?)</title>`),
	}
	thumbnailPattern = regexp.MustCompile(`"preferred_thumbnail":{"image":{"uri":"(.*?)"`)
	durationPattern  = regexp.MustCompile(`"playable_duration_in_ms":(\d+)`)

	entityReplacer = strings.NewReplacer("&quot;", `"`, "&amp;", "&")
)

type (
	// VideoInfo is the stream information scraped from a public reel page.
	// SD is always present; HD is empty when the page offers no HD stream.
	VideoInfo struct {
		URL        string `json:"url"`
		DurationMs int64  `json:"durationMs"`
		SD         string `json:"sd"`
		HD         string `json:"hd"`
		Title      string `json:"title"`
		Thumbnail  string `json:"thumbnail"`
	}

	VideoInfoFetcher struct {
		httpClient *http.Client
		config     Config
	}
)

// BestStream returns the highest quality stream available, preferring HD.
func (info *VideoInfo) BestStream() string {
	if info.HD != "" {
		return info.HD
	}

	return info.SD
}

func NewVideoInfoFetcher(config Config) *VideoInfoFetcher {
	return &VideoInfoFetcher{httpClient: newHTTPClient(config), config: config}
}

// IsFacebookURL reports whether the URL provided points at facebook.com or fb.watch.
func IsFacebookURL(target string) bool {
	return strings.Contains(target, "facebook.com") || strings.Contains(target, "fb.watch")
}

// Fetch downloads the reel page at the URL and extracts the stream URLs and
// metadata embedded in it.
func (fetcher *VideoInfoFetcher) Fetch(ctx context.Context, videoURL string) (*VideoInfo, error) {
	if strings.TrimSpace(videoURL) == "" || !IsFacebookURL(videoURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, videoURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	fetcher.applyHeaders(req)

	resp, err := fetcher.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video info for %s: %w", videoURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrHTTPStatus, videoURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read video page %s: %w", videoURL, err)
	}

	return ParseVideoPage(videoURL, string(body))
}

func (fetcher *VideoInfoFetcher) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", fetcher.config.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9,en-US;q=0.6")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if fetcher.config.Cookie != "" {
		req.Header.Set("Cookie", fetcher.config.Cookie)
	}
}

// ParseVideoPage extracts the VideoInfo from the HTML of a reel page. The
// patterns for each field are tried in priority order. A page without any
// SD stream yields ErrNoStream.
func ParseVideoPage(videoURL string, page string) (*VideoInfo, error) {
	cleaned := entityReplacer.Replace(page)

	sd := firstMatch(cleaned, sdPatterns)
	if sd == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoStream, videoURL)
	}

	info := &VideoInfo{
		URL:       videoURL,
		SD:        unescape(sd),
		HD:        unescape(firstMatch(cleaned, hdPatterns)),
		Title:     unescape(firstMatch(cleaned, titlePatterns)),
		Thumbnail: unescape(firstMatch(cleaned, []*regexp.Regexp{thumbnailPattern})),
	}

	if d := firstMatch(cleaned, []*regexp.Regexp{durationPattern}); d != "" {
		info.DurationMs, _ = strconv.ParseInt(d, 10, 64)
	}

	return info, nil
}

func firstMatch(data string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(data); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}

	return ""
}

// unescape decodes the JSON string escapes (\/, %, etc) used in the
// values embedded in the page. If the value cannot be decoded it is
// returned as-is.
func unescape(s string) string {
	if s == "" {
		return s
	}

	var out string
	if err := json.Unmarshal([]byte(`"`+strings.ReplaceAll(s, `"`, `\"`)+`"`), &out); err != nil {
		return s
	}

	return out
}
