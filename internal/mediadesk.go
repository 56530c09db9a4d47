package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/api"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Core")

// Mediadesk represents the top-level object for the server, and is responsible
// for constructing the stores and services, wiring them to the event bus, and
// running the long-lived services until shutdown.
type mediadeskImpl struct {
	config   MediadeskConfig
	db       database.Manager
	eventBus event.EventCoordinator
	metrics  *metrics.Metrics
	files    *storage.FileStore

	activityService *activityService
	restGateway     RestGateway
	ingestService   IngestService
	downloadService *download.Service
}

// New constructs every service Mediadesk needs. The database connection
// is not established until Run is called.
func New(config MediadeskConfig) (*mediadeskImpl, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Mediadesk services using config: %#v\n", config.Redacted())

	files, err := storage.New(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to construct file store: %w", err)
	}

	md := &mediadeskImpl{
		config:   config,
		db:       database.New(),
		eventBus: event.New(),
		metrics:  metrics.New(),
		files:    files,
	}

	store := newStoreOrchestrator(md.db)
	validate := validator.New()
	prober := ffmpeg.NewProber(&config.Ffmpeg)
	downloader := facebook.NewDownloader(config.Facebook)

	mediaService := media.NewService(store, files, prober, md.eventBus)
	pageService := page.NewService(store, facebook.NewGraphClient(config.Facebook))

	importer := reel.NewImporter(store, files, downloader)
	reconciler := reel.NewReconciler(store, files, facebook.NewVideoInfoFetcher(config.Facebook), downloader, md.eventBus, md.metrics)
	reelService := reel.NewService(store, files, importer, reconciler)

	compiler := editor.NewCompiler(config.Editor, store, files, ffmpeg.NewEncoder(&config.Ffmpeg), prober, validate, md.eventBus, md.metrics)
	editorService := editor.NewService(store, compiler)

	pipeline := download.NewPipeline(extract.New(config.Extractor), files, mediaService, md.eventBus, md.metrics)
	md.downloadService = download.NewService(config.Download, pipeline)

	if serv, err := ingest.New(config.Ingest, files, store, mediaService, md.eventBus, md.metrics); err == nil {
		md.ingestService = serv
	} else {
		return nil, fmt.Errorf("failed to construct ingestion service: %w", err)
	}

	gateway := api.NewRestGateway(&config.RestAPI, api.Services{
		Ingests:     md.ingestService,
		Downloads:   md.downloadService,
		Media:       mediaService,
		Pages:       pageService,
		Collections: reelService,
		Editor:      editorService,
		Metrics:     md.metrics,
	}, validate, files.Root())
	md.restGateway = gateway
	md.activityService = newActivityService(gateway, md.eventBus)

	return md, nil
}

// Run will start all of Mediadesk by connecting to the database and then
// spawning each of the long-lived services.
//
// This function will not return until Mediadesk is stopped.
// To stop Mediadesk, the provided context must be cancelled. Errors from which
// Mediadesk cannot recover will also cause it to stop.
func (md *mediadeskImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("service %s crashed: %w", label, err))
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := md.db.Connect(md.config.Database); err != nil {
		return err
	}
	defer md.db.Close()

	wg := &sync.WaitGroup{}
	md.spawnAsyncService(ctx, wg, md.activityService, "activity-service", crashHandler)
	md.spawnAsyncService(ctx, wg, md.ingestService, "ingest-service", crashHandler)
	md.spawnAsyncService(ctx, wg, md.downloadService, "download-service", crashHandler)
	md.spawnAsyncService(ctx, wg, md.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Mediadesk services spawned!\n")

	wg.Wait()
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Mediadesk service waitgroup is updated correctly
func (md *mediadeskImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
