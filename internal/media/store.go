package media

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Mediadesk/internal/database"
)

type Store struct{}

// Create inserts the asset, populating the ID and CreatedAt
// fields of the model from the new row.
func (store *Store) Create(db database.Queryable, asset *Asset) error {
	row := db.QueryRowx(`
		INSERT INTO media_assets(kind, filename, original_name, relative_path, file_size_bytes, duration_seconds,
		                         width_px, height_px, bitrate, sample_rate, channel_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		asset.Kind, asset.Filename, asset.OriginalName, asset.RelativePath, asset.FileSizeBytes, asset.DurationSeconds,
		asset.WidthPx, asset.HeightPx, asset.Bitrate, asset.SampleRate, asset.ChannelCount,
	)

	if err := row.Scan(&asset.ID, &asset.CreatedAt); err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to insert %s asset %s", asset.Kind, asset.Filename))
	}

	return nil
}

// List returns all assets of the given kind, newest first. An empty
// kind lists every asset.
func (store *Store) List(db database.Queryable, kind Kind) ([]*Asset, error) {
	builder := selectAssetBuilder().OrderBy("created_at DESC", "id DESC")
	if kind != "" {
		builder = builder.Where(squirrel.Eq{"kind": kind})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list assets query: %w", err)
	}

	var results []*Asset
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, database.WrapError(err, "failed to list assets")
	}

	return results, nil
}

func (store *Store) Get(db database.Queryable, id int64) (*Asset, error) {
	query, args, err := selectAssetBuilder().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select asset query: %w", err)
	}

	var asset Asset
	if err := db.Get(&asset, db.Rebind(query), args...); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to find asset %d", id))
	}

	return &asset, nil
}

// Delete removes the asset row, returning the deleted model so that
// the caller is able to clean up the file on disk.
func (store *Store) Delete(db database.Queryable, id int64) (*Asset, error) {
	var asset Asset
	if err := db.Get(&asset, `DELETE FROM media_assets WHERE id=$1 RETURNING *`, id); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to delete asset %d", id))
	}

	return &asset, nil
}

func selectAssetBuilder() squirrel.SelectBuilder {
	return squirrel.Select("*").From("media_assets")
}

// RelativePaths returns the path of every asset, used to recognise files
// on disk which are already known.
func (store *Store) RelativePaths(db database.Queryable) ([]string, error) {
	paths := make([]string, 0)
	if err := db.Select(&paths, `SELECT relative_path FROM media_assets`); err != nil {
		return nil, database.WrapError(err, "failed to list asset paths")
	}

	return paths, nil
}
