package reel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var reelIDPattern = regexp.MustCompile(`/reel/(\d+)`)

type ReconcileStatus string

const (
	StatusDownloaded ReconcileStatus = "success"
	StatusSkipped    ReconcileStatus = "skipped"
	StatusFailed     ReconcileStatus = "failed"
)

type (
	VideoInfoFetcher interface {
		Fetch(ctx context.Context, url string) (*facebook.VideoInfo, error)
	}

	VideoDownloader interface {
		DownloadToPath(ctx context.Context, url string, outputPath string) (int64, error)
	}

	reconcileStore interface {
		GetExtractedPage(id int64) (*ExtractedPage, error)
		ListReels(pageID int64) ([]*Reel, error)
		RecordReelDownload(pageID int64, reelID int64, video *DownloadedVideo, location string, at time.Time) error
	}

	reconcileFileStore interface {
		SubDirectory(category storage.Category, name string) (string, error)
		Exists(path string) bool
		ToRelative(absolute string) string
	}

	// Reconciler brings the reels of an extracted page on disk in line with
	// the database. Each reel is handled in turn, and a failure of one reel
	// never prevents the remaining reels from being attempted.
	Reconciler struct {
		store      reconcileStore
		files      reconcileFileStore
		fetcher    VideoInfoFetcher
		downloader VideoDownloader
		eventBus   event.EventDispatcher
		metrics    *metrics.Metrics
	}

	ReelResult struct {
		ReelID         string          `json:"reelId"`
		Status         ReconcileStatus `json:"status"`
		DownloadedFile string          `json:"downloadedFile,omitempty"`
		Error          string          `json:"error,omitempty"`
	}

	Summary struct {
		PageID          int64        `json:"pageId"`
		Subdirectory    string       `json:"subdirectory"`
		DownloadedCount int          `json:"downloadedCount"`
		SkippedCount    int          `json:"skippedCount"`
		FailedCount     int          `json:"failedCount"`
		Results         []ReelResult `json:"results"`
		Message         string       `json:"message"`
	}
)

func NewReconciler(store reconcileStore, files reconcileFileStore, fetcher VideoInfoFetcher, downloader VideoDownloader, eventBus event.EventDispatcher, metrics *metrics.Metrics) *Reconciler {
	return &Reconciler{store: store, files: files, fetcher: fetcher, downloader: downloader, eventBus: eventBus, metrics: metrics}
}

// Reconcile downloads every reel of the page which is not already present on
// disk in to the (sanitized) subdirectory of the reel downloads directory.
// An error is only returned if the page cannot be found or its reels cannot
// be loaded; failures of individual reels are reported in the summary.
func (reconciler *Reconciler) Reconcile(ctx context.Context, pageID int64, subdirectory string) (*Summary, error) {
	page, err := reconciler.store.GetExtractedPage(pageID)
	if err != nil {
		return nil, err
	}

	safeSubdirectory := storage.SanitizeSubdirectory(subdirectory)
	dir, err := reconciler.files.SubDirectory(storage.ReelDownloads, safeSubdirectory)
	if err != nil {
		return nil, err
	}

	reels, err := reconciler.store.ListReels(pageID)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Reconciling %d reel(s) of page %q in to %s\n", len(reels), page.PageName, dir)
	summary := &Summary{PageID: pageID, Subdirectory: safeSubdirectory, Results: make([]ReelResult, 0, len(reels))}
	for _, reel := range reels {
		result := reconciler.reconcileReel(ctx, page, reel, dir)
		switch result.Status {
		case StatusDownloaded:
			summary.DownloadedCount++
			reconciler.metrics.RecordReel(metrics.OutcomeSuccess)
		case StatusSkipped:
			summary.SkippedCount++
			reconciler.metrics.RecordReel(metrics.OutcomeSkipped)
		default:
			summary.FailedCount++
			reconciler.metrics.RecordReel(metrics.OutcomeFailed)
		}

		summary.Results = append(summary.Results, result)
		reconciler.eventBus.Dispatch(event.RECONCILE_UPDATE, pageID)
	}

	summary.Message = fmt.Sprintf(
		"Processed %d reels. Successfully downloaded %d, skipped %d (already downloaded), failed %d to %s",
		len(reels), summary.DownloadedCount, summary.SkippedCount, summary.FailedCount, reconciler.files.ToRelative(dir),
	)

	log.Emit(logger.SUCCESS, "%s\n", summary.Message)
	reconciler.eventBus.Dispatch(event.RECONCILE_COMPLETE, pageID)
	return summary, nil
}

func (reconciler *Reconciler) reconcileReel(ctx context.Context, page *ExtractedPage, reel *Reel, dir string) ReelResult {
	reelID := reelIdentifier(reel.Href)
	if existing := reel.DownloadStatus.Path(); existing != "" && reconciler.files.Exists(existing) {
		log.Emit(logger.DEBUG, "Reel %s already downloaded to %s\n", reelID, existing)
		return ReelResult{ReelID: reelID, Status: StatusSkipped, DownloadedFile: filepath.Base(existing)}
	}

	filename, err := reconciler.download(ctx, page, reel, reelID, dir)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to download reel %s: %v\n", reel.CanonicalURL(), err)
		return ReelResult{ReelID: reelID, Status: StatusFailed, Error: err.Error()}
	}

	return ReelResult{ReelID: reelID, Status: StatusDownloaded, DownloadedFile: filename}
}

func (reconciler *Reconciler) download(ctx context.Context, page *ExtractedPage, reel *Reel, reelID string, dir string) (string, error) {
	canonical := reel.CanonicalURL()
	info, err := reconciler.fetcher.Fetch(ctx, canonical)
	if err != nil {
		return "", err
	}

	stream := info.BestStream()
	if stream == "" {
		return "", fmt.Errorf("%w for %s", facebook.ErrNoStream, canonical)
	}

	filename := fmt.Sprintf("[%s].mp4", reelID)
	outputPath := filepath.Join(dir, filename)
	if _, err := reconciler.downloader.DownloadToPath(ctx, stream, outputPath); err != nil {
		return "", err
	}

	video := &DownloadedVideo{
		OriginalHref:   reel.Href,
		CanonicalURL:   canonical,
		SourcePageURL:  reel.ReelURL,
		SourcePageName: firstNonEmpty(reel.ReelPageName, page.PageName),
		SourcePageSlug: page.Slug,
		RemoteSdURL:    optionalString(info.SD),
		RemoteHdURL:    optionalString(info.HD),
		Title:          optionalString(info.Title),
		Thumbnail:      reel.ThumbnailPath,
		LocalFilePath:  outputPath,
		EngagementText: reel.EngagementText,
	}
	if info.DurationMs > 0 {
		video.DurationMs = &info.DurationMs
	}

	if err := reconciler.store.RecordReelDownload(page.ID, reel.ID, video, dir, time.Now()); err != nil {
		return "", errors.Join(fmt.Errorf("downloaded %s but failed to record it", filename), err)
	}

	log.Emit(logger.SUCCESS, "Downloaded reel %s to %s\n", reelID, outputPath)
	return filename, nil
}

// reelIdentifier extracts the numeric ID of the reel from its href, falling
// back to a time-based identifier for hrefs which do not contain one.
func reelIdentifier(href string) string {
	if match := reelIDPattern.FindStringSubmatch(href); match != nil {
		return match[1]
	}

	return fmt.Sprintf("unknown_%d", time.Now().UnixMilli())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
