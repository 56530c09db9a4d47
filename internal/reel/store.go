package reel

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Mediadesk/internal/database"
)

type Store struct{}

// UpsertPage inserts the page if no page with the same slug exists. An
// existing page is left untouched. In both cases the ID of the page row
// is populated on the model provided.
func (store *Store) UpsertPage(db database.Queryable, page *ExtractedPage) error {
	row := db.QueryRowx(`
		INSERT INTO extracted_pages(page_name, slug, url, followers_text, likes_text, image_relative_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET slug=EXCLUDED.slug
		RETURNING id, created_at`,
		page.PageName, page.Slug, page.URL, page.FollowersText, page.LikesText, page.ImageRelativePath,
	)

	if err := row.Scan(&page.ID, &page.CreatedAt); err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to upsert page %s", page.Slug))
	}

	return nil
}

func (store *Store) GetPage(db database.Queryable, id int64) (*ExtractedPage, error) {
	var page ExtractedPage
	if err := db.Get(&page, `SELECT * FROM extracted_pages WHERE id=$1`, id); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to find page %d", id))
	}

	return &page, nil
}

func (store *Store) GetPageSummary(db database.Queryable, id int64) (*PageSummary, error) {
	query, args, err := summaryBuilder().Where(squirrel.Eq{"p.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct page summary query: %w", err)
	}

	var summary PageSummary
	if err := db.Get(&summary, db.Rebind(query), args...); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to find page %d", id))
	}

	return &summary, nil
}

// ListPages returns every extracted page along with the
// counts of its JSON files, reels and downloaded reels.
func (store *Store) ListPages(db database.Queryable) ([]*PageSummary, error) {
	query, args, err := summaryBuilder().OrderBy("p.created_at DESC", "p.id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list pages query: %w", err)
	}

	var results []*PageSummary
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, database.WrapError(err, "failed to list pages")
	}

	return results, nil
}

// DeletePage removes the page. The reels and source files
// of the page are removed by the cascading foreign keys.
func (store *Store) DeletePage(db database.Queryable, id int64) (*ExtractedPage, error) {
	var page ExtractedPage
	if err := db.Get(&page, `DELETE FROM extracted_pages WHERE id=$1 RETURNING *`, id); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to delete page %d", id))
	}

	return &page, nil
}

func (store *Store) UpdatePageDownload(db database.Queryable, pageID int64, location string, at time.Time) error {
	res, err := db.Exec(`UPDATE extracted_pages SET download_location=$1, last_download_timestamp=$2 WHERE id=$3`, location, at, pageID)
	if err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to update download location of page %d", pageID))
	}

	return requireAffected(res, fmt.Sprintf("failed to update download location of page %d", pageID))
}

func (store *Store) InsertSourceJsonFile(db database.Queryable, pageID int64, storedPath string) (*SourceJsonFile, error) {
	var file SourceJsonFile
	if err := db.Get(&file, `
		INSERT INTO source_json_files(page_id, stored_path)
		VALUES ($1, $2)
		RETURNING *`, pageID, storedPath,
	); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to insert source JSON file for page %d", pageID))
	}

	return &file, nil
}

func (store *Store) SourceJsonFiles(db database.Queryable, pageID int64) ([]*SourceJsonFile, error) {
	var files []*SourceJsonFile
	if err := db.Select(&files, `SELECT * FROM source_json_files WHERE page_id=$1 ORDER BY id`, pageID); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to list source JSON files for page %d", pageID))
	}

	return files, nil
}

// InsertReels stores each of the reels provided against the page and
// source file given. Reels whose URL is already known are skipped, as
// are reels without a URL at all. The number of new rows is returned.
func (store *Store) InsertReels(db database.Queryable, pageID int64, sourceJsonFileID int64, reels []*Reel) (int, error) {
	inserted := 0
	for _, reel := range reels {
		if reel.ReelURL == "" {
			continue
		}

		reel.PageID = pageID
		reel.SourceJsonFileID = sourceJsonFileID
		if reel.DownloadStatus == "" {
			reel.DownloadStatus = NotDownloaded
		}

		res, err := db.Exec(`
			INSERT INTO reels(page_id, source_json_file_id, href, reel_page_name, reel_page_slug, reel_url,
			                  thumbnail_path, engagement_text, download_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (reel_url) DO NOTHING`,
			pageID, sourceJsonFileID, reel.Href, reel.ReelPageName, reel.ReelPageSlug, reel.ReelURL,
			reel.ThumbnailPath, reel.EngagementText, reel.DownloadStatus,
		)
		if err != nil {
			return inserted, database.WrapError(err, fmt.Sprintf("failed to insert reel %s", reel.ReelURL))
		}

		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	return inserted, nil
}

// ReelsForPage returns the reels of the page in the order they were stored.
func (store *Store) ReelsForPage(db database.Queryable, pageID int64) ([]*Reel, error) {
	var reels []*Reel
	if err := db.Select(&reels, `SELECT * FROM reels WHERE page_id=$1 ORDER BY id`, pageID); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to list reels for page %d", pageID))
	}

	return reels, nil
}

func (store *Store) UpdateReelStatus(db database.Queryable, reelID int64, status DownloadStatus) error {
	res, err := db.Exec(`UPDATE reels SET download_status=$1 WHERE id=$2`, status, reelID)
	if err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to update status of reel %d", reelID))
	}

	return requireAffected(res, fmt.Sprintf("failed to update status of reel %d", reelID))
}

func (store *Store) InsertDownloadedVideo(db database.Queryable, video *DownloadedVideo) error {
	row := db.QueryRowx(`
		INSERT INTO downloaded_videos(original_href, canonical_url, source_page_url, source_page_name, source_page_slug,
		                              remote_sd_url, remote_hd_url, title, thumbnail, local_file_path, duration_ms, engagement_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		video.OriginalHref, video.CanonicalURL, video.SourcePageURL, video.SourcePageName, video.SourcePageSlug,
		video.RemoteSdURL, video.RemoteHdURL, video.Title, video.Thumbnail, video.LocalFilePath, video.DurationMs, video.EngagementText,
	)

	if err := row.Scan(&video.ID, &video.CreatedAt); err != nil {
		return database.WrapError(err, fmt.Sprintf("failed to insert downloaded video %s", video.CanonicalURL))
	}

	return nil
}

func (store *Store) GetDownloadedVideo(db database.Queryable, id int64) (*DownloadedVideo, error) {
	var video DownloadedVideo
	if err := db.Get(&video, `SELECT * FROM downloaded_videos WHERE id=$1`, id); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to find downloaded video %d", id))
	}

	return &video, nil
}

// DownloadedVideosForPage returns the downloaded videos which
// originated from the page with the slug provided, newest first.
func (store *Store) DownloadedVideosForPage(db database.Queryable, slug string) ([]*DownloadedVideo, error) {
	query, args, err := squirrel.Select("*").
		From("downloaded_videos").
		Where(squirrel.Eq{"source_page_slug": slug}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct downloaded videos query: %w", err)
	}

	var videos []*DownloadedVideo
	if err := db.Select(&videos, db.Rebind(query), args...); err != nil {
		return nil, database.WrapError(err, fmt.Sprintf("failed to list downloaded videos for page %s", slug))
	}

	return videos, nil
}

func summaryBuilder() squirrel.SelectBuilder {
	return squirrel.Select(
		"p.*",
		"(SELECT COUNT(*) FROM source_json_files j WHERE j.page_id = p.id) AS json_file_count",
		"(SELECT COUNT(*) FROM reels r WHERE r.page_id = p.id) AS reel_count",
		fmt.Sprintf("(SELECT COUNT(*) FROM reels r WHERE r.page_id = p.id AND r.download_status <> '%s') AS downloaded_count", NotDownloaded),
	).From("extracted_pages p")
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffected, action string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return database.WrapError(err, action)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", action, database.ErrNotFound)
	}

	return nil
}
