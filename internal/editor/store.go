package editor

import (
	"time"

	"github.com/hbomb79/Mediadesk/internal/database"
)

// Record is an append-only entry describing a single completed edit. The
// source is always the original download or media asset, even when the
// edit was applied to the output of a previous edit. At most one of the
// two source IDs is set.
type Record struct {
	ID                    int64                       `db:"id" json:"id"`
	SourceVideoID         *int64                      `db:"source_video_id" json:"sourceVideoId"`
	SourceAssetID         *int64                      `db:"source_asset_id" json:"sourceAssetId"`
	PageID                int64                       `db:"page_id" json:"pageId"`
	OutputRelativePath    string                      `db:"output_relative_path" json:"editedFile"`
	ThumbnailRelativePath *string                     `db:"thumbnail_relative_path" json:"thumbnail"`
	EditParameters        database.JsonColumn[Params] `db:"edit_parameters" json:"editParameters"`
	CreatedAt             time.Time                   `db:"created_at" json:"createdAt"`
}

type Store struct{}

func (store *Store) Insert(db database.Queryable, record *Record) error {
	err := db.QueryRowx(`
		INSERT INTO edit_records(source_video_id, source_asset_id, page_id, output_relative_path, thumbnail_relative_path, edit_parameters)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		record.SourceVideoID, record.SourceAssetID, record.PageID, record.OutputRelativePath, record.ThumbnailRelativePath, record.EditParameters,
	).Scan(&record.ID, &record.CreatedAt)

	return database.WrapError(err, "insert edit record")
}

func (store *Store) Get(db database.Queryable, id int64) (*Record, error) {
	var dest Record
	if err := db.Get(&dest, `SELECT * FROM edit_records WHERE id=$1`, id); err != nil {
		return nil, database.WrapError(err, "get edit record")
	}

	return &dest, nil
}

// History returns every edit of the source video, oldest first.
func (store *Store) History(db database.Queryable, videoID int64) ([]*Record, error) {
	dest := make([]*Record, 0)
	if err := db.Select(&dest, `SELECT * FROM edit_records WHERE source_video_id=$1 ORDER BY created_at, id`, videoID); err != nil {
		return nil, database.WrapError(err, "select edit history")
	}

	return dest, nil
}

// ForPage returns the edits attributed to the page, newest first.
func (store *Store) ForPage(db database.Queryable, pageID int64) ([]*Record, error) {
	dest := make([]*Record, 0)
	if err := db.Select(&dest, `SELECT * FROM edit_records WHERE page_id=$1 ORDER BY created_at DESC, id DESC`, pageID); err != nil {
		return nil, database.WrapError(err, "select page edit records")
	}

	return dest, nil
}
