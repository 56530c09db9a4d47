package reel_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/tests/helpers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReconcileStore struct{ mock.Mock }

func (m *mockReconcileStore) GetExtractedPage(id int64) (*reel.ExtractedPage, error) {
	args := m.Called(id)
	page, _ := args.Get(0).(*reel.ExtractedPage)
	return page, args.Error(1)
}

func (m *mockReconcileStore) ListReels(pageID int64) ([]*reel.Reel, error) {
	args := m.Called(pageID)
	reels, _ := args.Get(0).([]*reel.Reel)
	return reels, args.Error(1)
}

func (m *mockReconcileStore) RecordReelDownload(pageID int64, reelID int64, video *reel.DownloadedVideo, location string, at time.Time) error {
	return m.Called(pageID, reelID, video, location).Error(0)
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*facebook.VideoInfo, error) {
	args := m.Called(url)
	info, _ := args.Get(0).(*facebook.VideoInfo)
	return info, args.Error(1)
}

// fileDownloader writes the stream URL in to the output path, mimicking
// a successful HTTP download.
type fileDownloader struct{ downloaded []string }

func (d *fileDownloader) DownloadToPath(_ context.Context, url string, outputPath string) (int64, error) {
	d.downloaded = append(d.downloaded, url)
	return int64(len(url)), os.WriteFile(outputPath, []byte(url), 0o644)
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Parallel()
	files, root := helpers.NewFileStore(t)
	store := &mockReconcileStore{}
	fetcher := &mockFetcher{}
	downloader := &fileDownloader{}
	m := metrics.New()

	eventBus := event.New()
	events := make(event.HandlerChannel, 16)
	eventBus.RegisterHandlerChannel(events, event.RECONCILE_UPDATE, event.RECONCILE_COMPLETE)

	existing := filepath.Join(root, "downloads", "previous", "[100].mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("video"), 0o644))

	page := &reel.ExtractedPage{ID: 1, PageName: "Cooking Daily", Slug: "cookingdaily"}
	reels := []*reel.Reel{
		{ID: 10, Href: "/reel/100", ReelURL: "https://www.facebook.com/reel/100", DownloadStatus: reel.DownloadedTo(existing)},
		{ID: 11, Href: "/reel/200", ReelURL: "https://www.facebook.com/reel/200", DownloadStatus: reel.DownloadedTo(filepath.Join(root, "gone.mp4"))},
		{ID: 12, Href: "/reel/300", ReelURL: "https://www.facebook.com/reel/300", DownloadStatus: reel.NotDownloaded},
		{ID: 13, Href: "/reel/400", ReelURL: "https://www.facebook.com/reel/400", DownloadStatus: reel.NotDownloaded},
	}
	store.On("GetExtractedPage", int64(1)).Return(page, nil)
	store.On("ListReels", int64(1)).Return(reels, nil)
	store.On("RecordReelDownload", int64(1), int64(11), mock.Anything, filepath.Join(root, "downloads", "my-reels")).Return(nil)

	fetcher.On("Fetch", "https://www.facebook.com/reel/200").Return(&facebook.VideoInfo{SD: "https://video/sd/200", HD: "https://video/hd/200", DurationMs: 1500}, nil)
	fetcher.On("Fetch", "https://www.facebook.com/reel/300").Return(&facebook.VideoInfo{}, nil)
	fetcher.On("Fetch", "https://www.facebook.com/reel/400").Return(nil, errors.New("page unavailable"))

	reconciler := reel.NewReconciler(store, files, fetcher, downloader, eventBus, m)
	summary, err := reconciler.Reconcile(context.Background(), 1, "my-reels!/..")
	require.NoError(t, err)

	assert.Equal(t, "my-reels", summary.Subdirectory, "unsafe characters are stripped from the subdirectory")
	assert.Equal(t, 1, summary.DownloadedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, 2, summary.FailedCount)
	assert.Equal(t, []reel.ReelResult{
		{ReelID: "100", Status: reel.StatusSkipped, DownloadedFile: "[100].mp4"},
		{ReelID: "200", Status: reel.StatusDownloaded, DownloadedFile: "[200].mp4"},
		{ReelID: "300", Status: reel.StatusFailed, Error: "no playable stream found for https://www.facebook.com/reel/300"},
		{ReelID: "400", Status: reel.StatusFailed, Error: "page unavailable"},
	}, summary.Results)

	assert.Equal(t, []string{"https://video/hd/200"}, downloader.downloaded, "HD is preferred over SD")
	assert.FileExists(t, filepath.Join(root, "downloads", "my-reels", "[200].mp4"))

	video := store.Calls[2].Arguments.Get(2).(*reel.DownloadedVideo)
	assert.Equal(t, "/reel/200", video.OriginalHref)
	assert.Equal(t, "https://www.facebook.com/reel/200", video.CanonicalURL)
	assert.Equal(t, "cookingdaily", video.SourcePageSlug)
	assert.Equal(t, "Cooking Daily", video.SourcePageName)
	assert.Equal(t, filepath.Join(root, "downloads", "my-reels", "[200].mp4"), video.LocalFilePath)
	assert.Equal(t, int64(1500), *video.DurationMs)
	assert.Equal(t, "https://video/sd/200", *video.RemoteSdURL)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReelTotal.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReelTotal.WithLabelValues(metrics.OutcomeSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReelTotal.WithLabelValues(metrics.OutcomeFailed)))

	require.Len(t, events, 5)
	for range 4 {
		assert.Equal(t, event.HandlerEvent{Event: event.RECONCILE_UPDATE, Payload: int64(1)}, <-events)
	}
	assert.Equal(t, event.HandlerEvent{Event: event.RECONCILE_COMPLETE, Payload: int64(1)}, <-events)

	store.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "Fetch", "https://www.facebook.com/reel/100")
}

func TestReconciler_RecordFailureIsPerReel(t *testing.T) {
	t.Parallel()
	files, _ := helpers.NewFileStore(t)
	store := &mockReconcileStore{}
	fetcher := &mockFetcher{}

	store.On("GetExtractedPage", int64(2)).Return(&reel.ExtractedPage{ID: 2, Slug: "page"}, nil)
	store.On("ListReels", int64(2)).Return([]*reel.Reel{
		{ID: 1, Href: "/reel/1", DownloadStatus: reel.NotDownloaded},
		{ID: 2, Href: "/reel/2", DownloadStatus: reel.NotDownloaded},
	}, nil)
	store.On("RecordReelDownload", int64(2), int64(1), mock.Anything, mock.Anything).Return(database.ErrStorage).Once()
	store.On("RecordReelDownload", int64(2), int64(2), mock.Anything, mock.Anything).Return(nil).Once()
	fetcher.On("Fetch", mock.Anything).Return(&facebook.VideoInfo{SD: "https://video/sd"}, nil)

	summary, err := reel.NewReconciler(store, files, fetcher, &fileDownloader{}, event.New(), nil).Reconcile(context.Background(), 2, "")
	require.NoError(t, err)

	assert.Equal(t, "default", summary.Subdirectory)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 1, summary.DownloadedCount)
	assert.Contains(t, summary.Results[0].Error, "storage failure")
}

func TestReconciler_PageNotFound(t *testing.T) {
	t.Parallel()
	files, _ := helpers.NewFileStore(t)
	store := &mockReconcileStore{}
	store.On("GetExtractedPage", int64(404)).Return(nil, database.ErrNotFound)

	_, err := reel.NewReconciler(store, files, &mockFetcher{}, &fileDownloader{}, event.New(), nil).Reconcile(context.Background(), 404, "x")
	assert.ErrorIs(t, err, database.ErrNotFound)
	store.AssertNotCalled(t, "ListReels", mock.Anything)
}

func TestReconciler_UnknownReelID(t *testing.T) {
	t.Parallel()
	files, _ := helpers.NewFileStore(t)
	store := &mockReconcileStore{}
	fetcher := &mockFetcher{}

	store.On("GetExtractedPage", int64(3)).Return(&reel.ExtractedPage{ID: 3}, nil)
	store.On("ListReels", int64(3)).Return([]*reel.Reel{{ID: 1, Href: "/watch/?v=abc", DownloadStatus: reel.NotDownloaded}}, nil)
	fetcher.On("Fetch", "https://www.facebook.com/watch/?v=abc").Return(nil, facebook.ErrNoStream)

	summary, err := reel.NewReconciler(store, files, fetcher, &fileDownloader{}, event.New(), nil).Reconcile(context.Background(), 3, "")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Regexp(t, `^unknown_\d+$`, summary.Results[0].ReelID)
	assert.Equal(t, reel.StatusFailed, summary.Results[0].Status)
}
