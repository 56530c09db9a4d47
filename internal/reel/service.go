package reel

import (
	"context"
	"slices"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Reels")

// Pages whose name or slug is at least this similar to a search
// query are included in the search results.
const searchThreshold = 0.7

type (
	DataStore interface {
		importStore
		reconcileStore
		GetExtractedPageSummary(id int64) (*PageSummary, error)
		ListExtractedPages() ([]*PageSummary, error)
		DeleteExtractedPage(id int64) (*ExtractedPage, []*SourceJsonFile, error)
	}

	FileStore interface {
		importFileStore
		reconcileFileStore
	}

	// Service is the entry point for the collections API, combining the
	// scrape importer and the reel reconciler with the read side of the
	// extracted pages.
	Service struct {
		store      DataStore
		files      FileStore
		importer   *Importer
		reconciler *Reconciler
	}

	// ReelView is a reel as presented to the user, with its on-disk state
	// resolved. Link points to the local file if it exists, otherwise to
	// the reel on Facebook.
	ReelView struct {
		*Reel
		FileExists bool   `json:"fileExists"`
		Link       string `json:"link"`
	}

	PageDetails struct {
		Page  *PageSummary `json:"page"`
		Reels []ReelView   `json:"reels"`
	}
)

func NewService(store DataStore, files FileStore, importer *Importer, reconciler *Reconciler) *Service {
	return &Service{store: store, files: files, importer: importer, reconciler: reconciler}
}

func (service *Service) Import(ctx context.Context, raw []byte, originalName string) (*ImportResult, error) {
	return service.importer.Import(ctx, raw, originalName)
}

func (service *Service) Reconcile(ctx context.Context, pageID int64, subdirectory string) (*Summary, error) {
	return service.reconciler.Reconcile(ctx, pageID, subdirectory)
}

// Pages lists the extracted pages. If a query is given, only the pages whose
// name or slug contains, or closely resembles, the query are returned, ranked
// by their similarity to it.
func (service *Service) Pages(query string) ([]*PageSummary, error) {
	pages, err := service.store.ListExtractedPages()
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return pages, nil
	}

	return rankPages(pages, query), nil
}

func (service *Service) Page(id int64) (*PageDetails, error) {
	summary, err := service.store.GetExtractedPageSummary(id)
	if err != nil {
		return nil, err
	}

	reels, err := service.Reels(id)
	if err != nil {
		return nil, err
	}

	return &PageDetails{Page: summary, Reels: reels}, nil
}

func (service *Service) Reels(pageID int64) ([]ReelView, error) {
	reels, err := service.store.ListReels(pageID)
	if err != nil {
		return nil, err
	}

	views := make([]ReelView, len(reels))
	for i, reel := range reels {
		views[i] = ReelView{Reel: reel, Link: reel.CanonicalURL()}
		if path := reel.DownloadStatus.Path(); path != "" && service.files.Exists(path) {
			views[i].FileExists = true
			views[i].Link = "/" + strings.TrimPrefix(service.files.ToRelative(path), "/")
		}
	}

	return views, nil
}

// DeletePage removes the page along with its reels, and deletes the
// stored scrape documents of the page from disk. Downloaded reel videos
// are left in place as they may be the source of edits.
func (service *Service) DeletePage(id int64) error {
	page, sourceFiles, err := service.store.DeleteExtractedPage(id)
	if err != nil {
		return err
	}

	for _, file := range sourceFiles {
		service.files.Remove(file.StoredPath)
	}

	log.Emit(logger.REMOVE, "Deleted page %q (%s) and %d source file(s)\n", page.PageName, page.Slug, len(sourceFiles))
	return nil
}

func rankPages(pages []*PageSummary, query string) []*PageSummary {
	metric := metrics.NewJaroWinkler()
	metric.CaseSensitive = false

	lowerQuery := strings.ToLower(query)
	scores := make(map[int64]float64, len(pages))
	matched := make([]*PageSummary, 0, len(pages))
	for _, page := range pages {
		score := max(
			strutil.Similarity(query, page.PageName, metric),
			strutil.Similarity(query, page.Slug, metric),
		)
		if strings.Contains(strings.ToLower(page.PageName), lowerQuery) || strings.Contains(strings.ToLower(page.Slug), lowerQuery) {
			score = max(score, 1)
		}

		if score >= searchThreshold {
			scores[page.ID] = score
			matched = append(matched, page)
		}
	}

	slices.SortStableFunc(matched, func(a, b *PageSummary) int {
		switch {
		case scores[a.ID] > scores[b.ID]:
			return -1
		case scores[a.ID] < scores[b.ID]:
			return 1
		}
		return 0
	})

	return matched
}
