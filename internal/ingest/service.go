package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/hbomb79/Mediadesk/pkg/worker"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("IngestServ")

type (
	Registrar interface {
		RegisterDiscovered(ctx context.Context, relativePath string) (*media.Asset, error)
	}

	DataStore interface {
		MediaRelativePaths() ([]string, error)
	}

	FileStore interface {
		EnsureCategoryDirectory(category storage.Category) (string, error)
		ToRelative(absolute string) string
		ToAbsolute(relative string) string
	}

	// Service is responsible for managing the automatic detection
	// and ingestion of files dropped in to the raw uploads directory.
	// The detected files are:
	// - Held until they have stopped changing
	// - Checked against a blacklist to ensure they should be processed
	// - Probed and persisted as a media asset
	// A file which cannot be ingested is marked as TROUBLED, and is
	// held until it is retried or aborted.
	Service struct {
		*sync.Mutex

		config     Config
		ingestPath string
		excluded   map[string]bool
		blacklist  []*regexp.Regexp

		registrar Registrar
		store     DataStore
		files     FileStore
		eventBus  event.EventDispatcher
		metrics   *metrics.Metrics

		items            []*IngestItem
		dismissed        map[string]bool
		importHoldTimers map[uuid.UUID]*time.Timer
		workerPool       *worker.WorkerPool
		ctx              context.Context
		pendingEvents    []event.HandlerEvent
	}
)

// New creates a new ingest Service watching the raw uploads directory
// of the file store. Sub-directories which belong to other categories of
// the store are not ingested from.
func New(config Config, files FileStore, store DataStore, registrar Registrar, eventBus event.EventDispatcher, metrics *metrics.Metrics) (*Service, error) {
	ingestPath, err := files.EnsureCategoryDirectory(storage.RawUploads)
	if err != nil {
		return nil, fmt.Errorf("ingestion directory could not be prepared: %w", err)
	}

	excluded := make(map[string]bool)
	for _, category := range []storage.Category{storage.TempVideo, storage.TempAudio, storage.JsonUploads} {
		if dir, err := files.EnsureCategoryDirectory(category); err == nil {
			excluded[dir] = true
		}
	}

	blacklist := make([]*regexp.Regexp, len(config.Blacklist))
	for i, expr := range config.Blacklist {
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ingest blacklist expression %q is invalid: %w", expr, err)
		}
		blacklist[i] = compiled
	}

	service := &Service{
		Mutex:            &sync.Mutex{},
		config:           config,
		ingestPath:       ingestPath,
		excluded:         excluded,
		blacklist:        blacklist,
		registrar:        registrar,
		store:            store,
		files:            files,
		eventBus:         eventBus,
		metrics:          metrics,
		items:            make([]*IngestItem, 0),
		dismissed:        make(map[string]bool),
		importHoldTimers: make(map[uuid.UUID]*time.Timer),
		workerPool:       worker.NewWorkerPool(),
		ctx:              context.Background(),
	}

	parallelism := max(config.IngestionParallelism, 1)
	for i := 0; i < parallelism; i++ {
		label := fmt.Sprintf("ingest-worker-%d", i)
		if err := service.workerPool.PushWorker(worker.NewWorker(label, service.performItemIngest)); err != nil {
			return nil, err
		}
	}

	return service, nil
}

// Run is the main entry point of this service. It's responsible
// for listening to the OS file system and responding to change events,
// as well as regularly polling the file system irrespective of the
// watcher.
// To kill the service, the calling code should cancel the context
// provided.
func (service *Service) Run(ctx context.Context) error {
	service.Lock()
	service.ctx = ctx
	service.Unlock()

	fsNotifyChannel := make(chan notify.EventInfo, 16)
	if err := notify.Watch(service.ingestPath+"/...", fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		log.Emit(logger.WARNING, "File system watcher unavailable, falling back to polling only: %v\n", err)
	} else {
		defer notify.Stop(fsNotifyChannel)
	}

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()
	defer service.clearAllImportHoldTimers()

	forceIngestTicker := time.NewTicker(service.config.forceSyncInterval())
	defer forceIngestTicker.Stop()

	log.Emit(logger.INFO, "Watching %s for new files\n", service.ingestPath)
	service.DiscoverNewFiles()
	for {
		select {
		case <-fsNotifyChannel:
			service.DiscoverNewFiles()
		case <-forceIngestTicker.C:
			service.DiscoverNewFiles()
		case <-ctx.Done():
			return nil
		}
	}
}

// performItemIngest is the worker function for the Service, which is called
// by the services WorkerPool.
// This function will claim the first IDLE item it finds and attempt to ingest it.
// If the ingestion fails with a Trouble, then it will be set on
// the item and its state set to TROUBLED.
func (service *Service) performItemIngest(w worker.Worker) (bool, error) {
	item, ctx := service.claimIdleItem()
	if item == nil {
		return false, nil
	}

	_, err := item.ingest(ctx, service.registrar, service.files.ToRelative(item.Path))
	service.metrics.RecordIngest(err)

	service.Lock()
	defer service.unlockAndFlush()
	if err != nil {
		var trouble Trouble
		if !errors.As(err, &trouble) {
			trouble = newTrouble(err)
		}

		log.Emit(logger.WARNING, "Ingestion of %s is troubled: %v\n", item, err)
		item.Trouble = &trouble
		item.State = Troubled
		service.queueEvent(event.INGEST_UPDATE, item.ID)
		return true, nil
	}

	service.removeItem(item.ID)
	service.queueEvent(event.INGEST_COMPLETE, item.ID)
	return true, nil
}

// ResolveTrouble applies the resolution to the troubled item. A retry
// returns the item to the queue, whereas an abort removes the item and
// ignores its file until the service restarts.
func (service *Service) ResolveTrouble(itemID uuid.UUID, resolution ResolutionType) error {
	service.Lock()
	defer service.unlockAndFlush()

	item := service.findItem(itemID)
	if item == nil {
		return ErrIngestNotFound
	}
	if item.State != Troubled || item.Trouble == nil {
		return ErrNoTrouble
	}
	if !item.Trouble.isResolutionTypeAllowed(resolution) {
		return ErrResolutionIncompatible
	}

	switch resolution {
	case Retry:
		log.Emit(logger.INFO, "Retrying troubled item %s\n", item)
		item.Trouble = nil
		item.State = Idle
		service.queueEvent(event.INGEST_UPDATE, itemID)
		service.wakeupWorkerPool()
	case Abort:
		log.Emit(logger.REMOVE, "Aborting troubled item %s\n", item)
		service.dismissed[item.Path] = true
		service.removeItem(itemID)
		service.queueEvent(event.INGEST_COMPLETE, itemID)
	}

	return nil
}

// RemoveIngest removes the item with the ID provided from the service.
// Items which are currently being ingested cannot be removed.
func (service *Service) RemoveIngest(itemID uuid.UUID) error {
	service.Lock()
	defer service.unlockAndFlush()

	item := service.findItem(itemID)
	if item == nil {
		return ErrIngestNotFound
	}
	if item.State == Ingesting {
		return ErrIngestBusy
	}

	service.dismissed[item.Path] = true
	service.removeItem(itemID)
	return nil
}

// GetIngest returns a copy of the item with the ID provided, or nil if no
// such item exists.
func (service *Service) GetIngest(itemID uuid.UUID) *IngestItem {
	service.Lock()
	defer service.unlockAndFlush()

	if item := service.findItem(itemID); item != nil {
		copied := *item
		return &copied
	}

	return nil
}

// GetAllIngests returns a snapshot of every item in the service.
func (service *Service) GetAllIngests() []*IngestItem {
	service.Lock()
	defer service.unlockAndFlush()

	out := make([]*IngestItem, len(service.items))
	for i, item := range service.items {
		copied := *item
		out[i] = &copied
	}

	return out
}

func (service *Service) findItem(id uuid.UUID) *IngestItem {
	for _, item := range service.items {
		if item.ID == id {
			return item
		}
	}

	return nil
}

func (service *Service) removeItem(id uuid.UUID) {
	service.clearImportHoldTimer(id)
	service.items = slices.DeleteFunc(service.items, func(item *IngestItem) bool { return item.ID == id })
}

// claimIdleItem will try and find an IDLE item in the ingest service,
// and set its state to 'INGESTING' to prevent another
// worker from claiming it once the mutex lock is released.
//
// Note: This function takes ownership of the mutex, and releases it when returning
func (service *Service) claimIdleItem() (*IngestItem, context.Context) {
	service.Lock()
	defer service.unlockAndFlush()

	for _, item := range service.items {
		if item.State == Idle {
			item.State = Ingesting
			service.queueEvent(event.INGEST_UPDATE, item.ID)
			return item, service.ctx
		}
	}

	return nil, nil
}

// queueEvent records an event to be dispatched once the mutex is released,
// so that handlers are free to call back in to the service.
func (service *Service) queueEvent(ev event.Event, itemID uuid.UUID) {
	service.pendingEvents = append(service.pendingEvents, event.HandlerEvent{Event: ev, Payload: itemID})
}

func (service *Service) unlockAndFlush() {
	pending := service.pendingEvents
	service.pendingEvents = nil
	service.Unlock()

	for _, ev := range pending {
		service.eventBus.Dispatch(ev.Event, ev.Payload)
	}
}

func (service *Service) wakeupWorkerPool() {
	if err := service.workerPool.WakeupWorkers(); err != nil {
		log.Emit(logger.DEBUG, "Unable to wake ingest workers: %v\n", err)
	}
}
