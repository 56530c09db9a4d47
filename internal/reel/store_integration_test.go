package reel_test

import (
	"testing"
	"time"

	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importOnce(t *testing.T, db database.Queryable, store *reel.Store) int {
	t.Helper()

	page := &reel.ExtractedPage{PageName: "Cooking Daily", Slug: "cookingdaily", URL: "https://www.facebook.com/cookingdaily"}
	require.NoError(t, store.UpsertPage(db, page))

	file, err := store.InsertSourceJsonFile(db, page.ID, "uploads/json/cooking.json")
	require.NoError(t, err)

	inserted, err := store.InsertReels(db, page.ID, file.ID, []*reel.Reel{
		{Href: "/reel/1", ReelURL: "https://www.facebook.com/reel/1"},
		{Href: "/reel/2", ReelURL: "https://www.facebook.com/reel/2"},
	})
	require.NoError(t, err)

	return inserted
}

func TestStoreIntegration_ReimportIsIdempotent(t *testing.T) {
	db := helpers.NewTestDatabase(t)
	store := &reel.Store{}

	assert.Equal(t, 2, importOnce(t, db, store))
	assert.Equal(t, 0, importOnce(t, db, store), "re-importing must not duplicate reels")

	pages, err := store.ListPages(db)
	require.NoError(t, err)
	require.Len(t, pages, 1, "pages are unique by slug")
	assert.Equal(t, 2, pages[0].JsonFileCount, "every upload is kept for provenance")
	assert.Equal(t, 2, pages[0].ReelCount)
	assert.Equal(t, 0, pages[0].DownloadedCount)
}

func TestStoreIntegration_RecordDownloadAndCascade(t *testing.T) {
	db := helpers.NewTestDatabase(t)
	store := &reel.Store{}
	importOnce(t, db, store)

	pages, err := store.ListPages(db)
	require.NoError(t, err)
	pageID := pages[0].ID

	reels, err := store.ReelsForPage(db, pageID)
	require.NoError(t, err)
	require.Len(t, reels, 2)
	assert.Equal(t, "/reel/1", reels[0].Href, "reels are returned in stored order")

	video := &reel.DownloadedVideo{OriginalHref: "/reel/1", CanonicalURL: "https://www.facebook.com/reel/1", SourcePageSlug: "cookingdaily", LocalFilePath: "/srv/downloads/default/[1].mp4"}
	require.NoError(t, store.InsertDownloadedVideo(db, video))
	require.NoError(t, store.UpdatePageDownload(db, pageID, "/srv/downloads/default", time.Now()))
	require.NoError(t, store.UpdateReelStatus(db, reels[0].ID, reel.DownloadedTo(video.LocalFilePath)))

	summary, err := store.GetPageSummary(db, pageID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DownloadedCount)
	require.NotNil(t, summary.DownloadLocation)
	assert.Equal(t, "/srv/downloads/default", *summary.DownloadLocation)
	assert.NotNil(t, summary.LastDownloadTimestamp)

	videos, err := store.DownloadedVideosForPage(db, "cookingdaily")
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	_, err = store.DeletePage(db, pageID)
	require.NoError(t, err)

	reels, err = store.ReelsForPage(db, pageID)
	require.NoError(t, err)
	assert.Empty(t, reels, "reels are owned by their page")

	_, err = store.GetPage(db, pageID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
