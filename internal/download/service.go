package download

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/progress"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

type (
	Config struct {
		RetentionSeconds     int `yaml:"retention_seconds" env:"DOWNLOAD_RETENTION_SECONDS" env-default:"600"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds" env:"DOWNLOAD_SWEEP_INTERVAL_SECONDS" env-default:"60"`
	}

	// Service owns the download pipeline and keeps track of the batches
	// it is running. Finished batches are forgotten once they have been
	// finished for longer than the configured retention.
	Service struct {
		config   Config
		pipeline *Pipeline
		mutex    sync.Mutex
		batches  map[uuid.UUID]*Batch
		wg       sync.WaitGroup
	}
)

func NewService(config Config, pipeline *Pipeline) *Service {
	return &Service{config: config, pipeline: pipeline, batches: make(map[uuid.UUID]*Batch)}
}

func (service *Service) retention() time.Duration {
	if service.config.RetentionSeconds <= 0 {
		return 10 * time.Minute
	}

	return time.Duration(service.config.RetentionSeconds) * time.Second
}

func (service *Service) sweepInterval() time.Duration {
	if service.config.SweepIntervalSeconds <= 0 {
		return time.Minute
	}

	return time.Duration(service.config.SweepIntervalSeconds) * time.Second
}

// Run periodically evicts finished batches until the context is cancelled,
// at which point it waits for any in-flight batches to finish.
func (service *Service) Run(ctx context.Context) error {
	log.Emit(logger.NEW, "Download service started\n")
	ticker := time.NewTicker(service.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			service.sweep(time.Now())
		case <-ctx.Done():
			log.Emit(logger.STOP, "Download service closing, waiting for in-flight batches...\n")
			service.wg.Wait()
			return nil
		}
	}
}

// Start validates the request and begins running it in a new goroutine. The
// batch is detached from the context provided (so a disconnecting client
// does not interrupt an in-flight download) and reports to the sink given.
// Callers wishing to block until the batch completes should wait on the
// batch's Done channel.
func (service *Service) Start(ctx context.Context, request Request, sink progress.Sink) (*Batch, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	batch := newBatch(request)
	service.mutex.Lock()
	service.batches[batch.id] = batch
	service.mutex.Unlock()

	detached := context.WithoutCancel(ctx)
	service.wg.Add(1)
	go func() {
		defer service.wg.Done()
		service.pipeline.Run(detached, batch, sink)
	}()

	return batch, nil
}

// ResolvePlaylist lists the entries of a playlist without downloading them.
func (service *Service) ResolvePlaylist(ctx context.Context, rawURL string) ([]extract.Entry, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	return service.pipeline.ResolvePlaylist(ctx, rawURL)
}

func (service *Service) Batch(id uuid.UUID) *Batch {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	return service.batches[id]
}

// Batches returns a snapshot of every tracked batch, oldest first.
func (service *Service) Batches() []Snapshot {
	service.mutex.Lock()
	snapshots := make([]Snapshot, 0, len(service.batches))
	for _, batch := range service.batches {
		snapshots = append(snapshots, batch.Snapshot())
	}
	service.mutex.Unlock()

	slices.SortFunc(snapshots, func(a, b Snapshot) int { return a.StartedAt.Compare(b.StartedAt) })
	return snapshots
}

func (service *Service) sweep(now time.Time) {
	cutoff := now.Add(-service.retention())

	service.mutex.Lock()
	defer service.mutex.Unlock()
	for id, batch := range service.batches {
		if batch.finishedBefore(cutoff) {
			log.Emit(logger.REMOVE, "Forgetting finished batch %s\n", id)
			delete(service.batches, id)
		}
	}
}

func validateRequest(request Request) error {
	if err := validateURL(request.URL); err != nil {
		return err
	}

	if request.Format != extract.FormatVideo && request.Format != extract.FormatAudio {
		return fmt.Errorf("%w: unknown format %s", ErrInvalidRequest, request.Format)
	}

	return nil
}

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidRequest)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not a valid http(s) URL", ErrInvalidRequest, rawURL)
	}

	return nil
}
