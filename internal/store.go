package internal

import (
	"fmt"
	"time"

	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/jmoiron/sqlx"
)

type (
	// storeOrchestrator is responsible for managing all of Mediadesk's resources,
	// especially highly-relational data. You can think of all
	// the data stores below this layer being 'dumb', and this store
	// linking them together and providing the database instance.
	//
	// Operations which touch more than one table are performed inside a
	// single transaction so that a failure part way through leaves no trace.
	storeOrchestrator struct {
		db          database.Manager
		mediaStore  *media.Store
		pageStore   *page.Store
		reelStore   *reel.Store
		editorStore *editor.Store
	}
)

func newStoreOrchestrator(db database.Manager) *storeOrchestrator {
	return &storeOrchestrator{
		db:          db,
		mediaStore:  &media.Store{},
		pageStore:   &page.Store{},
		reelStore:   &reel.Store{},
		editorStore: &editor.Store{},
	}
}

// * Media * //

func (orchestrator *storeOrchestrator) CreateAsset(asset *media.Asset) error {
	return orchestrator.mediaStore.Create(orchestrator.db.GetSqlxDb(), asset)
}

func (orchestrator *storeOrchestrator) ListAssets(kind media.Kind) ([]*media.Asset, error) {
	return orchestrator.mediaStore.List(orchestrator.db.GetSqlxDb(), kind)
}

func (orchestrator *storeOrchestrator) GetAsset(id int64) (*media.Asset, error) {
	return orchestrator.mediaStore.Get(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *storeOrchestrator) DeleteAsset(id int64) (*media.Asset, error) {
	return orchestrator.mediaStore.Delete(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *storeOrchestrator) MediaRelativePaths() ([]string, error) {
	return orchestrator.mediaStore.RelativePaths(orchestrator.db.GetSqlxDb())
}

// * Pages * //

// SavePages upserts every page given, or none of them.
func (orchestrator *storeOrchestrator) SavePages(pages []*page.Page) error {
	return orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		for _, p := range pages {
			if err := orchestrator.pageStore.Upsert(tx, p); err != nil {
				return err
			}
		}

		return nil
	})
}

func (orchestrator *storeOrchestrator) ListPages() ([]*page.Page, error) {
	return orchestrator.pageStore.List(orchestrator.db.GetSqlxDb())
}

func (orchestrator *storeOrchestrator) UpdatePage(id int64, name string, pageURL *string) (*page.Page, error) {
	return orchestrator.pageStore.Update(orchestrator.db.GetSqlxDb(), id, name, pageURL)
}

func (orchestrator *storeOrchestrator) DeletePage(id int64) error {
	return orchestrator.pageStore.Delete(orchestrator.db.GetSqlxDb(), id)
}

// * Extracted pages and reels * //

// SaveScrapeImport persists an imported scrape document: the page is
// upserted on its slug, the stored document is recorded against it and
// any reels not already known are inserted.
func (orchestrator *storeOrchestrator) SaveScrapeImport(extracted *reel.ExtractedPage, storedPath string, reels []*reel.Reel) (*reel.SourceJsonFile, int, error) {
	var (
		file     *reel.SourceJsonFile
		inserted int
	)

	err := orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		if err := orchestrator.reelStore.UpsertPage(tx, extracted); err != nil {
			return err
		}

		var err error
		if file, err = orchestrator.reelStore.InsertSourceJsonFile(tx, extracted.ID, storedPath); err != nil {
			return err
		}

		inserted, err = orchestrator.reelStore.InsertReels(tx, extracted.ID, file.ID, reels)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return file, inserted, nil
}

func (orchestrator *storeOrchestrator) GetExtractedPage(id int64) (*reel.ExtractedPage, error) {
	return orchestrator.reelStore.GetPage(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *storeOrchestrator) GetExtractedPageSummary(id int64) (*reel.PageSummary, error) {
	return orchestrator.reelStore.GetPageSummary(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *storeOrchestrator) ListExtractedPages() ([]*reel.PageSummary, error) {
	return orchestrator.reelStore.ListPages(orchestrator.db.GetSqlxDb())
}

func (orchestrator *storeOrchestrator) ListReels(pageID int64) ([]*reel.Reel, error) {
	return orchestrator.reelStore.ReelsForPage(orchestrator.db.GetSqlxDb(), pageID)
}

// RecordReelDownload stores the downloaded video, marks the reel as
// downloaded to the video's file and stamps the page with the location
// of its most recent download.
func (orchestrator *storeOrchestrator) RecordReelDownload(pageID int64, reelID int64, video *reel.DownloadedVideo, location string, at time.Time) error {
	return orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		if err := orchestrator.reelStore.InsertDownloadedVideo(tx, video); err != nil {
			return err
		}
		if err := orchestrator.reelStore.UpdateReelStatus(tx, reelID, reel.DownloadedTo(video.LocalFilePath)); err != nil {
			return err
		}

		return orchestrator.reelStore.UpdatePageDownload(tx, pageID, location, at)
	})
}

// DeleteExtractedPage deletes the page (cascading to its reels and
// document rows) and returns the page along with the documents which
// were stored for it, so their files can be removed.
func (orchestrator *storeOrchestrator) DeleteExtractedPage(id int64) (*reel.ExtractedPage, []*reel.SourceJsonFile, error) {
	var (
		deleted *reel.ExtractedPage
		files   []*reel.SourceJsonFile
	)

	err := orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		var err error
		if files, err = orchestrator.reelStore.SourceJsonFiles(tx, id); err != nil {
			return err
		}

		deleted, err = orchestrator.reelStore.DeletePage(tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return deleted, files, nil
}

// * Edits * //

func (orchestrator *storeOrchestrator) GetDownloadedVideo(id int64) (*reel.DownloadedVideo, error) {
	return orchestrator.reelStore.GetDownloadedVideo(orchestrator.db.GetSqlxDb(), id)
}

// DownloadedVideosForPage finds the videos downloaded from the reels of
// the extracted page given. Videos are attributed to a page by its slug.
func (orchestrator *storeOrchestrator) DownloadedVideosForPage(pageID int64) ([]*reel.DownloadedVideo, error) {
	db := orchestrator.db.GetSqlxDb()
	extracted, err := orchestrator.reelStore.GetPage(db, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to find videos for page %d: %w", pageID, err)
	}

	return orchestrator.reelStore.DownloadedVideosForPage(db, extracted.Slug)
}

func (orchestrator *storeOrchestrator) GetEditRecord(id int64) (*editor.Record, error) {
	return orchestrator.editorStore.Get(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *storeOrchestrator) SaveEditRecord(record *editor.Record) error {
	return orchestrator.editorStore.Insert(orchestrator.db.GetSqlxDb(), record)
}

func (orchestrator *storeOrchestrator) EditHistory(videoID int64) ([]*editor.Record, error) {
	return orchestrator.editorStore.History(orchestrator.db.GetSqlxDb(), videoID)
}

func (orchestrator *storeOrchestrator) EditRecordsForPage(pageID int64) ([]*editor.Record, error) {
	return orchestrator.editorStore.ForPage(orchestrator.db.GetSqlxDb(), pageID)
}
