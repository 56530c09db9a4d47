package media_test

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetColumns = []string{
	"id", "kind", "filename", "original_name", "relative_path", "file_size_bytes", "duration_seconds",
	"width_px", "height_px", "bitrate", "sample_rate", "channel_count", "created_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

func TestStore_Create(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	store := &media.Store{}

	asset := media.NewAsset(media.Video, "clip.mp4", "clip.mp4", "uploads/temp_video/clip.mp4", &ffmpeg.ProbeResult{
		DurationSeconds: 12.5,
		SizeBytes:       2048,
		Video:           &ffmpeg.VideoStream{Width: 1920, Height: 1080},
	})

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO media_assets`).
		WithArgs(media.Video, "clip.mp4", "clip.mp4", "uploads/temp_video/clip.mp4", int64(2048), 12.5,
			int64(1920), int64(1080), nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, now))

	require.NoError(t, store.Create(db, asset))
	assert.Equal(t, int64(7), asset.ID)
	assert.Equal(t, now, asset.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_StorageError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO media_assets`).WillReturnError(errors.New("connection reset"))

	err := (&media.Store{}).Create(db, &media.Asset{Kind: media.Audio, Filename: "a.mp3"})
	assert.ErrorIs(t, err, database.ErrStorage)
	assert.ErrorContains(t, err, "connection reset")
}

func TestStore_List_FiltersByKind(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows(assetColumns).
		AddRow(2, "audio", "b.mp3", "b.mp3", "uploads/temp_audio/b.mp3", 100, 3.0, nil, nil, 128000, 44100, 2, time.Now()).
		AddRow(1, "audio", "a.mp3", "a.mp3", "uploads/temp_audio/a.mp3", 100, 3.0, nil, nil, nil, nil, nil, time.Now())
	mock.ExpectQuery(`SELECT \* FROM media_assets WHERE kind = \$1 ORDER BY created_at DESC, id DESC`).
		WithArgs(media.Audio).
		WillReturnRows(rows)

	assets, err := (&media.Store{}).List(db, media.Audio)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, int64(2), assets[0].ID)
	require.NotNil(t, assets[0].SampleRate)
	assert.Equal(t, 44100, *assets[0].SampleRate)
	assert.Nil(t, assets[1].Bitrate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_NotFound(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM media_assets WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := (&media.Store{}).Get(db, 42)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.NotErrorIs(t, err, database.ErrStorage)
}

func TestStore_Delete_ReturnsDeletedRow(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectQuery(`DELETE FROM media_assets WHERE id=\$1 RETURNING \*`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(assetColumns).
			AddRow(3, "video", "v.mp4", "v.mp4", "uploads/temp_video/v.mp4", 10, 1.0, 640, 480, nil, nil, nil, time.Now()))

	asset, err := (&media.Store{}).Delete(db, 3)
	require.NoError(t, err)
	assert.Equal(t, "uploads/temp_video/v.mp4", asset.RelativePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAsset_OnlyKindFieldsPopulated(t *testing.T) {
	t.Parallel()

	probe := &ffmpeg.ProbeResult{
		DurationSeconds: 3,
		Video:           &ffmpeg.VideoStream{Width: 1280, Height: 720},
		Audio:           &ffmpeg.AudioStream{Bitrate: 192000, SampleRate: 48000, Channels: 2},
	}

	video := media.NewAsset(media.Video, "a.mp4", "a.mp4", "a.mp4", probe)
	assert.Equal(t, 1280, *video.WidthPx)
	assert.Nil(t, video.Bitrate)

	audio := media.NewAsset(media.Audio, "a.mp3", "a.mp3", "a.mp3", probe)
	assert.Nil(t, audio.WidthPx)
	assert.Equal(t, 48000, *audio.SampleRate)

	probe.Video.Width = 1
	assert.Equal(t, 1280, *video.WidthPx, "asset must not alias the probe result")

	assert.Equal(t, media.Video, media.KindOf(probe))
	assert.Equal(t, media.Audio, media.KindOf(&ffmpeg.ProbeResult{Audio: probe.Audio}))
}
