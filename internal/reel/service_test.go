package reel_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a minimal in-memory reel.DataStore
// for exercising the read side of the service.
type memoryStore struct {
	pages       []*reel.PageSummary
	reels       map[int64][]*reel.Reel
	sourceFiles map[int64][]*reel.SourceJsonFile
}

func (s *memoryStore) SaveScrapeImport(*reel.ExtractedPage, string, []*reel.Reel) (*reel.SourceJsonFile, int, error) {
	return nil, 0, nil
}

func (s *memoryStore) GetExtractedPage(id int64) (*reel.ExtractedPage, error) {
	summary, err := s.GetExtractedPageSummary(id)
	if err != nil {
		return nil, err
	}
	return &summary.ExtractedPage, nil
}

func (s *memoryStore) GetExtractedPageSummary(id int64) (*reel.PageSummary, error) {
	for _, p := range s.pages {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, os.ErrNotExist
}

func (s *memoryStore) ListExtractedPages() ([]*reel.PageSummary, error) { return s.pages, nil }

func (s *memoryStore) DeleteExtractedPage(id int64) (*reel.ExtractedPage, []*reel.SourceJsonFile, error) {
	page, err := s.GetExtractedPage(id)
	return page, s.sourceFiles[id], err
}

func (s *memoryStore) ListReels(pageID int64) ([]*reel.Reel, error) { return s.reels[pageID], nil }

func (s *memoryStore) RecordReelDownload(int64, int64, *reel.DownloadedVideo, string, time.Time) error {
	return nil
}

func summary(id int64, name string, slug string) *reel.PageSummary {
	return &reel.PageSummary{ExtractedPage: reel.ExtractedPage{ID: id, PageName: name, Slug: slug}}
}

func TestService_Pages_Search(t *testing.T) {
	t.Parallel()
	files, _ := helpers.NewFileStore(t)
	store := &memoryStore{pages: []*reel.PageSummary{
		summary(1, "Gardening Tips", "gardeningtips"),
		summary(2, "Cooking Daily", "cookingdaily"),
		summary(3, "Daily Cookin", "dailycookin"),
	}}
	service := reel.NewService(store, files, nil, nil)

	all, err := service.Pages("  ")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	results, err := service.Pages("cooking")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(2), results[0].ID, "exact substring matches rank first")
	for _, r := range results {
		assert.NotEqual(t, int64(1), r.ID, "unrelated pages are excluded")
	}
}

func TestService_Reels_ResolvesLinks(t *testing.T) {
	t.Parallel()
	files, root := helpers.NewFileStore(t)

	downloaded := filepath.Join(root, "downloads", "default", "[1].mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(downloaded), 0o755))
	require.NoError(t, os.WriteFile(downloaded, []byte("x"), 0o644))

	store := &memoryStore{reels: map[int64][]*reel.Reel{
		7: {
			{ID: 1, Href: "/reel/1", DownloadStatus: reel.DownloadedTo(downloaded)},
			{ID: 2, Href: "/reel/2", DownloadStatus: reel.DownloadedTo(filepath.Join(root, "missing.mp4"))},
			{ID: 3, Href: "/reel/3", DownloadStatus: reel.NotDownloaded},
		},
	}}

	views, err := reel.NewService(store, files, nil, nil).Reels(7)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.True(t, views[0].FileExists)
	assert.Equal(t, "/downloads/default/[1].mp4", views[0].Link)
	assert.False(t, views[1].FileExists)
	assert.Equal(t, "https://www.facebook.com/reel/2", views[1].Link)
	assert.Equal(t, "https://www.facebook.com/reel/3", views[2].Link)
}

func TestService_DeletePage_RemovesSourceFiles(t *testing.T) {
	t.Parallel()
	files, root := helpers.NewFileStore(t)

	stored := filepath.Join(root, "uploads", "json", "page_1.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stored), 0o755))
	require.NoError(t, os.WriteFile(stored, []byte("{}"), 0o644))

	store := &memoryStore{
		pages:       []*reel.PageSummary{summary(1, "Page", "page")},
		sourceFiles: map[int64][]*reel.SourceJsonFile{1: {{ID: 1, PageID: 1, StoredPath: "uploads/json/page_1.json"}}},
	}

	require.NoError(t, reel.NewService(store, files, nil, nil).DeletePage(1))
	assert.NoFileExists(t, stored)
}
