package facebook_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

const reelPage = `<html><head><title>Reel | Facebook</title>
<meta name="description" content="A great reel &amp; more" />
</head><body><script>
{"browser_native_sd_url":"https:\/\/video.xx.fbcdn.net\/v\/sd.mp4?a=1&amp;b=2","browser_native_hd_url":"https:\/\/video.xx.fbcdn.net\/v\/hd.mp4",
"preferred_thumbnail":{"image":{"uri":"https:\/\/scontent.xx.fbcdn.net\/thumb.jpg"}},"playable_duration_in_ms":15230}
</script></body></html>`

func TestParseVideoPage(t *testing.T) {
	t.Parallel()

	info, err := facebook.ParseVideoPage("https://www.facebook.com/reel/123", reelPage)
	require.NoError(t, err)

	assert.Equal(t, "https://video.xx.fbcdn.net/v/sd.mp4?a=1&b=2", info.SD)
	assert.Equal(t, "https://video.xx.fbcdn.net/v/hd.mp4", info.HD)
	assert.Equal(t, "https://scontent.xx.fbcdn.net/thumb.jpg", info.Thumbnail)
	assert.Equal(t, "A great reel & more", info.Title)
	assert.Equal(t, int64(15230), info.DurationMs)
	assert.Equal(t, info.HD, info.BestStream())
}

func TestParseVideoPage_FallbackPatterns(t *testing.T) {
	t.Parallel()

	page := `<title>Only SD</title><script>sd_src: "https://cdn.example/sd.mp4"</script>`
	info, err := facebook.ParseVideoPage("https://fb.watch/abc", page)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/sd.mp4", info.SD)
	assert.Empty(t, info.HD)
	assert.Equal(t, "Only SD", info.Title)
	assert.Equal(t, info.SD, info.BestStream(), "SD is used when no HD stream exists")
}

func TestParseVideoPage_NoStream(t *testing.T) {
	t.Parallel()

	_, err := facebook.ParseVideoPage("https://www.facebook.com/reel/1", "<html>Log in to continue</html>")
	assert.ErrorIs(t, err, facebook.ErrNoStream)
}

func TestFetch_RejectsNonFacebookURL(t *testing.T) {
	t.Parallel()

	fetcher := facebook.NewVideoInfoFetcher(facebook.Config{})
	_, err := fetcher.Fetch(context.Background(), "https://example.com/reel/1")
	assert.ErrorIs(t, err, facebook.ErrInvalidURL)

	_, err = fetcher.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, facebook.ErrInvalidURL)
}

func TestGraphAccounts_FollowsPaging(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/accounts", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))

		if r.URL.Query().Get("after") == "" {
			fmt.Fprintf(w, `{"data":[{"id":"1","name":"First","link":"https://facebook.com/first","access_token":"t1","picture":{"data":{"url":"https://img/1.jpg"}}}],
				"paging":{"next":"%s/me/accounts?access_token=user-token&after=abc"}}`, server.URL)
			return
		}

		fmt.Fprint(w, `{"data":[{"id":"2","name":"Second","access_token":"t2"}],"paging":{}}`)
	}))
	t.Cleanup(server.Close)

	client := facebook.NewGraphClient(facebook.Config{UserToken: "user-token", GraphBaseURL: server.URL})
	pages, err := client.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "First", pages[0].Name)
	assert.Equal(t, "https://img/1.jpg", pages[0].PictureURL())
	assert.Equal(t, "https://facebook.com/first", pages[0].PageURL())
	assert.Equal(t, "https://www.facebook.com/2", pages[1].PageURL())
}

func TestGraphAccounts_Errors(t *testing.T) {
	t.Parallel()

	_, err := facebook.NewGraphClient(facebook.Config{}).Accounts(context.Background())
	assert.ErrorIs(t, err, facebook.ErrMissingToken)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`)
	}))
	t.Cleanup(server.Close)

	_, err = facebook.NewGraphClient(facebook.Config{UserToken: "bad", GraphBaseURL: server.URL}).Accounts(context.Background())
	assert.ErrorIs(t, err, facebook.ErrGraph)
	assert.ErrorContains(t, err, "Invalid OAuth access token.")
}

func TestDownloadToPath(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		fmt.Fprint(w, "mp4-bytes")
	}))
	t.Cleanup(server.Close)

	out := filepath.Join(t.TempDir(), "[123].mp4")
	n, err := facebook.NewDownloader(facebook.Config{MaxRetries: 1}).DownloadToPath(context.Background(), server.URL, out)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, int32(2), hits.Load(), "5xx responses should be retried")

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(contents))
	assert.NoFileExists(t, out+".part")
}

func TestDownloadToPath_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	out := filepath.Join(t.TempDir(), "denied.mp4")
	_, err := facebook.NewDownloader(facebook.Config{MaxRetries: 3}).DownloadToPath(context.Background(), server.URL, out)
	assert.ErrorIs(t, err, facebook.ErrHTTPStatus)
	assert.Equal(t, int32(1), hits.Load())
	assert.NoFileExists(t, out)
}

func TestParseScrapeDocument(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"fbPageInfo": {"pageName": "  Cool Page ", "slug": "coolpage", "url": "https://facebook.com/coolpage", "followersText": "1.2K followers", "imageUrl": "https://img/p.png"},
		"reels": [{"href": "/reel/111", "reelPage": "Cool Page", "reelPageslug": "coolpage", "reelUrl": "https://facebook.com/reel/111", "src": "https://img/r.jpg", "targetSpanText": "1K"}]
	}`)

	doc, err := facebook.ParseScrapeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "Cool Page", doc.NormalizedPageName())
	assert.Equal(t, "coolpage", doc.Slug())
	require.Len(t, doc.Reels, 1)
	assert.Equal(t, "/reel/111", doc.Reels[0].Href)
	assert.Equal(t, "coolpage", doc.Reels[0].ReelPageSlug)
}

func TestParseScrapeDocument_ReelsOnly(t *testing.T) {
	t.Parallel()

	doc, err := facebook.ParseScrapeDocument([]byte(`{"reels": []}`))
	require.NoError(t, err)
	assert.Equal(t, "Unknown Page", doc.NormalizedPageName())
	assert.Equal(t, "unknown", doc.Slug())
}

func TestParseScrapeDocument_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{}`,
		`{"something": "else"}`,
		`{"reels": "not-an-array"}`,
		`not json`,
	} {
		_, err := facebook.ParseScrapeDocument([]byte(raw))
		assert.ErrorIs(t, err, facebook.ErrInvalidDocument, "document %s should be rejected", raw)
	}
}
