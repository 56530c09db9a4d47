package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/progress"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Download")

var ErrInvalidRequest = errors.New("invalid download request")

type (
	Extractor interface {
		Resolve(ctx context.Context, url string, playlist bool) (*extract.Descriptor, error)
		Download(ctx context.Context, url string, outputPath string, format extract.Format) error
	}

	FileStore interface {
		EnsureCategoryDirectory(category storage.Category) (string, error)
		SubDirectory(category storage.Category, name string) (string, error)
		ToRelative(absolute string) string
	}

	// AssetRegistrar probes a file which has landed in the file store,
	// and persists a media asset for it.
	AssetRegistrar interface {
		Register(ctx context.Context, kind media.Kind, relativePath string, originalName string) (*media.Asset, error)
	}

	// Pipeline downloads every item a URL resolves to, one at a time,
	// reporting the progress of the batch to a progress.Sink. A failure of
	// one item is recorded and the pipeline moves on to the next.
	Pipeline struct {
		extractor Extractor
		files     FileStore
		assets    AssetRegistrar
		eventBus  event.EventDispatcher
		metrics   *metrics.Metrics
	}

	// target is the location a batch downloads its items in to.
	target struct {
		directory string
		playlist  *progress.PlaylistInfo
	}

	item struct {
		index    int
		title    string
		url      string
		filename string
		path     string
	}
)

func NewPipeline(extractor Extractor, files FileStore, assets AssetRegistrar, eventBus event.EventDispatcher, metrics *metrics.Metrics) *Pipeline {
	return &Pipeline{extractor: extractor, files: files, assets: assets, eventBus: eventBus, metrics: metrics}
}

func kindOf(format extract.Format) media.Kind {
	if format == extract.FormatAudio {
		return media.Audio
	}

	return media.Video
}

// Run executes the batch, emitting each state transition to the sink. The
// error returned is only non-nil if the batch could not be set up (i.e. the
// URL could not be resolved), in which case a single 'error' event will
// have been emitted. Failures of individual items are never returned.
func (pipeline *Pipeline) Run(ctx context.Context, batch *Batch, sink progress.Sink) error {
	request := batch.request
	kind := kindOf(request.Format)
	log.Emit(logger.NEW, "Starting %s batch %s for %s (playlist=%v)\n", kind, batch.id, request.URL, request.Playlist)

	descriptor, target, err := pipeline.resolve(ctx, request)
	if err != nil {
		log.Emit(logger.ERROR, "Batch %s failed to resolve %s: %v\n", batch.id, request.URL, err)
		pipeline.emit(sink, progress.Event{
			Type:    progress.ErrorEvent,
			BatchID: batch.id.String(),
			Message: fmt.Sprintf("Error downloading %s", request.Format),
			Error:   err.Error(),
		})
		pipeline.finish(batch, kind, err)
		return err
	}

	items := pipeline.buildItems(descriptor, target, request.Format)
	total := len(items)
	batch.resolved(descriptor.Title, total)
	pipeline.eventBus.Dispatch(event.DOWNLOAD_UPDATE, batch.id)

	if total > 0 {
		pipeline.emit(sink, progress.Event{
			Type:         progress.ProgressEvent,
			BatchID:      batch.id.String(),
			Total:        total,
			Message:      fmt.Sprintf("Starting download of %d %s item(s)...", total, kind),
			PlaylistInfo: target.playlist,
		})
	}

	results := make([]*media.Asset, 0, total)
	failures := make([]progress.FailedItem, 0)
	completed := 0
	for _, it := range items {
		batch.itemStarted(it.title)
		pipeline.emit(sink, progress.Event{
			Type:      progress.ProgressEvent,
			BatchID:   batch.id.String(),
			Total:     total,
			Completed: completed,
			Current:   &progress.Current{Title: it.title, Filename: it.filename, Directory: target.directory, Status: progress.StatusDownloading},
			Message:   fmt.Sprintf("Downloading: %s", it.title),
		})

		asset, err := pipeline.downloadItem(ctx, kind, request.Format, it)
		completed++
		batch.itemFinished(err)
		pipeline.metrics.RecordBatchItem(string(kind), err)
		pipeline.eventBus.Dispatch(event.DOWNLOAD_PROGRESS, batch.id)

		if err != nil {
			log.Emit(logger.WARNING, "[%d/%d] Failed to download %q (%s): %v\n", it.index, total, it.title, it.url, err)
			failures = append(failures, progress.FailedItem{Index: it.index, Title: it.title, URL: it.url, Error: err.Error()})
			pipeline.emit(sink, progress.Event{
				Type:      progress.ErrorEvent,
				BatchID:   batch.id.String(),
				Total:     total,
				Completed: completed,
				Video:     &progress.ItemFailure{Title: it.title, Directory: target.directory, Error: err.Error()},
			})
			continue
		}

		log.Emit(logger.SUCCESS, "[%d/%d] Downloaded %q (%d bytes, %.1fs)\n", it.index, total, it.title, asset.FileSizeBytes, asset.DurationSeconds)
		results = append(results, asset)
		pipeline.emit(sink, progress.Event{
			Type:      progress.ProgressEvent,
			BatchID:   batch.id.String(),
			Total:     total,
			Completed: completed,
			Current: &progress.Current{
				Title:     it.title,
				Filename:  it.filename,
				Directory: target.directory,
				Status:    progress.StatusCompleted,
				Size:      asset.FileSizeBytes,
				Duration:  asset.DurationSeconds,
			},
			Message: fmt.Sprintf("Completed: %s", it.title),
		})
	}

	batch.setState(Finalizing)
	errCount := len(failures)
	summary := progress.Event{
		Type:      progress.CompleteEvent,
		BatchID:   batch.id.String(),
		Total:     total,
		Completed: completed,
		Errors:    &errCount,
		Message:   fmt.Sprintf("Downloaded %d of %d %s item(s) to %s", total-errCount, total, kind, target.directory),
		Videos:    results,
	}
	if errCount > 0 {
		summary.ErrorList = failures
	}
	if target.playlist != nil {
		info := *target.playlist
		info.CompletedItems = &completed
		info.Errors = &errCount
		summary.PlaylistInfo = &info
	}

	pipeline.emit(sink, summary)
	log.Emit(logger.INFO, "Batch %s complete: %d/%d item(s) downloaded, %d failed\n", batch.id, total-errCount, total, errCount)
	pipeline.finish(batch, kind, nil)
	return nil
}

// ResolvePlaylist lists the items of the playlist at the URL
// without downloading any of them.
func (pipeline *Pipeline) ResolvePlaylist(ctx context.Context, url string) ([]extract.Entry, error) {
	descriptor, err := pipeline.extractor.Resolve(ctx, url, true)
	if err != nil {
		return nil, err
	}

	return descriptor.Items(), nil
}

// resolve asks the extractor for the items of the request, and prepares
// the directory they will be downloaded in to. Playlists get their own
// sub-directory named after the playlist; single items are placed in
// the temporary directory for their kind.
func (pipeline *Pipeline) resolve(ctx context.Context, request Request) (*extract.Descriptor, *target, error) {
	descriptor, err := pipeline.extractor.Resolve(ctx, request.URL, request.Playlist)
	if err != nil {
		return nil, nil, err
	}

	if !descriptor.IsPlaylist() {
		dir, err := pipeline.files.EnsureCategoryDirectory(media.CategoryFor(kindOf(request.Format)))
		if err != nil {
			return nil, nil, err
		}

		return descriptor, &target{directory: dir}, nil
	}

	dir, err := pipeline.files.SubDirectory(storage.Playlists, playlistDirectoryName(descriptor))
	if err != nil {
		return nil, nil, err
	}

	return descriptor, &target{
		directory: dir,
		playlist:  &progress.PlaylistInfo{Name: descriptor.Title, Path: dir, TotalItems: len(descriptor.Items())},
	}, nil
}

func (pipeline *Pipeline) buildItems(descriptor *extract.Descriptor, target *target, format extract.Format) []item {
	entries := descriptor.Items()
	items := make([]item, len(entries))
	for i, entry := range entries {
		filename := itemFilename(entry, i+1, format)
		items[i] = item{
			index:    i + 1,
			title:    entry.Title,
			url:      entry.Location(),
			filename: filename,
			path:     filepath.Join(target.directory, filename),
		}
	}

	return items
}

func (pipeline *Pipeline) downloadItem(ctx context.Context, kind media.Kind, format extract.Format, it item) (*media.Asset, error) {
	if it.url == "" {
		return nil, fmt.Errorf("%w: item %d has no URL", extract.ErrDownload, it.index)
	}

	if err := pipeline.extractor.Download(ctx, it.url, it.path, format); err != nil {
		return nil, err
	}

	return pipeline.assets.Register(ctx, kind, pipeline.files.ToRelative(it.path), it.title)
}

func (pipeline *Pipeline) emit(sink progress.Sink, ev progress.Event) {
	if err := sink.Emit(ev); err != nil {
		log.Emit(logger.DEBUG, "Failed to emit %s event for batch %s: %v\n", ev.Type, ev.BatchID, err)
	}
}

func (pipeline *Pipeline) finish(batch *Batch, kind media.Kind, err error) {
	batch.finish(err)
	pipeline.metrics.RecordBatch(string(kind), batch.State().String())
	pipeline.eventBus.Dispatch(event.DOWNLOAD_COMPLETE, batch.id)
}

func playlistDirectoryName(descriptor *extract.Descriptor) string {
	name := storage.SanitizeName(descriptor.Title)
	if name == "" {
		name = storage.SanitizeName(descriptor.ID)
	}
	if name == "" {
		return "playlist"
	}

	return name
}

// itemFilename derives the on-disk name of the item from its title,
// falling back to its ID (or position) when the title is blank.
func itemFilename(entry extract.Entry, index int, format extract.Format) string {
	name := storage.SanitizeName(entry.Title)
	if name == "" {
		name = storage.SanitizeName(entry.ID)
	}
	if name == "" {
		name = fmt.Sprintf("item_%d", index)
	}

	return name + format.Extension()
}
