package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockManager is a database manager over a sqlmock connection.
type mockManager struct {
	db *sqlx.DB
}

func (m *mockManager) Connect(database.DatabaseConfig) error { return nil }
func (m *mockManager) GetSqlxDb() *sqlx.DB                   { return m.db }
func (m *mockManager) Close() error                          { return nil }
func (m *mockManager) WrapTx(f func(*sqlx.Tx) error) error   { return database.WrapTx(m.db, f) }

func newMockOrchestrator(t *testing.T) (*storeOrchestrator, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newStoreOrchestrator(&mockManager{sqlx.NewDb(db, "postgres")}), mock
}

func TestStoreOrchestrator_RecordReelDownload(t *testing.T) {
	t.Parallel()
	store, mock := newMockOrchestrator(t)

	at := time.Now()
	video := &reel.DownloadedVideo{CanonicalURL: "https://www.facebook.com/reel/11", LocalFilePath: "/srv/public/downloads/my-reels/[11].mp4"}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO downloaded_videos`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, at))
	mock.ExpectExec(`UPDATE reels SET download_status=\$1 WHERE id=\$2`).
		WithArgs(reel.DownloadedTo(video.LocalFilePath), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE extracted_pages SET download_location`).
		WithArgs("/srv/public/downloads/my-reels", at, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordReelDownload(2, 11, video, "/srv/public/downloads/my-reels", at))
	assert.Equal(t, int64(5), video.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOrchestrator_RecordReelDownload_RollsBack(t *testing.T) {
	t.Parallel()
	store, mock := newMockOrchestrator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO downloaded_videos`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))
	mock.ExpectExec(`UPDATE reels SET download_status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.RecordReelDownload(2, 11, &reel.DownloadedVideo{LocalFilePath: "/tmp/[11].mp4"}, "/tmp", time.Now())
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOrchestrator_SaveScrapeImport(t *testing.T) {
	t.Parallel()
	store, mock := newMockOrchestrator(t)

	now := time.Now()
	extracted := &reel.ExtractedPage{PageName: "Cooking Daily", Slug: "cookingdaily", URL: "https://www.facebook.com/cookingdaily"}
	reels := []*reel.Reel{
		{Href: "/reel/1", ReelURL: "https://www.facebook.com/reel/1"},
		{Href: "/reel/2", ReelURL: "https://www.facebook.com/reel/2"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO extracted_pages`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, now))
	mock.ExpectQuery(`INSERT INTO source_json_files`).
		WithArgs(int64(3), "uploads/json/cooking.json").
		WillReturnRows(sqlmock.NewRows([]string{"id", "page_id", "stored_path", "created_at"}).AddRow(8, 3, "uploads/json/cooking.json", now))
	mock.ExpectExec(`INSERT INTO reels`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reels`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	file, inserted, err := store.SaveScrapeImport(extracted, "uploads/json/cooking.json", reels)
	require.NoError(t, err)
	assert.Equal(t, int64(8), file.ID)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(3), extracted.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOrchestrator_SavePages_IsAtomic(t *testing.T) {
	t.Parallel()
	store, mock := newMockOrchestrator(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pages`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO pages`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SavePages([]*page.Page{
		{ExternalPageID: "1001", Name: "Daily Clips"},
		{ExternalPageID: "1002", Name: "Weekly Clips"},
	})
	assert.ErrorIs(t, err, database.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreOrchestrator_DownloadedVideosForPage_UnknownPage(t *testing.T) {
	t.Parallel()
	store, mock := newMockOrchestrator(t)

	mock.ExpectQuery(`SELECT \* FROM extracted_pages WHERE id=\$1`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.DownloadedVideosForPage(4)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
