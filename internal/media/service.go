package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"

	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var (
	log = logger.Get("Media")

	ErrNoFiles = errors.New("no files uploaded")
)

type (
	Prober interface {
		Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	}

	FileStore interface {
		Place(category storage.Category, source io.Reader, desiredName string) (string, error)
		ToAbsolute(relative string) string
		Size(path string) (int64, error)
		Remove(path string)
	}

	DataStore interface {
		CreateAsset(asset *Asset) error
		ListAssets(kind Kind) ([]*Asset, error)
		GetAsset(id int64) (*Asset, error)
		DeleteAsset(id int64) (*Asset, error)
	}

	// UploadFailure describes a single file of an upload which could not
	// be stored. Other files in the same upload are unaffected.
	UploadFailure struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}

	// Service is responsible for the lifecycle of media assets: registering
	// files which have landed in the file store, accepting uploads, and
	// deleting assets along with their files.
	Service struct {
		store    DataStore
		files    FileStore
		prober   Prober
		eventBus event.EventDispatcher
	}
)

func NewService(store DataStore, files FileStore, prober Prober, eventBus event.EventDispatcher) *Service {
	return &Service{store: store, files: files, prober: prober, eventBus: eventBus}
}

// CategoryFor returns the file store category assets of the given
// kind are placed in when they arrive as single files.
func CategoryFor(kind Kind) storage.Category {
	if kind == Audio {
		return storage.TempAudio
	}

	return storage.TempVideo
}

// Register probes the file found at the relative path provided and, if
// successful, persists a new asset for it.
func (service *Service) Register(ctx context.Context, kind Kind, relativePath string, originalName string) (*Asset, error) {
	absolute := service.files.ToAbsolute(relativePath)
	probe, err := service.prober.Probe(ctx, absolute)
	if err != nil {
		return nil, err
	}

	return service.persist(kind, relativePath, originalName, probe)
}

// RegisterDiscovered registers a file which was found on disk rather than
// uploaded. The kind of the asset is decided by the streams of the file.
func (service *Service) RegisterDiscovered(ctx context.Context, relativePath string) (*Asset, error) {
	absolute := service.files.ToAbsolute(relativePath)
	probe, err := service.prober.Probe(ctx, absolute)
	if err != nil {
		return nil, err
	}

	return service.persist(KindOf(probe), relativePath, filepath.Base(absolute), probe)
}

func (service *Service) persist(kind Kind, relativePath string, originalName string, probe *ffmpeg.ProbeResult) (*Asset, error) {
	absolute := service.files.ToAbsolute(relativePath)
	if probe.SizeBytes <= 0 {
		if size, err := service.files.Size(absolute); err == nil {
			probe.SizeBytes = size
		}
	}

	asset := NewAsset(kind, filepath.Base(absolute), originalName, relativePath, probe)
	if err := service.store.CreateAsset(asset); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Registered %s asset %d (%s)\n", asset.Kind, asset.ID, asset.RelativePath)
	service.eventBus.Dispatch(event.MEDIA_UPDATE, asset.ID)
	return asset, nil
}

// Upload places each of the multipart files in to the file store under
// their original name, and registers an asset for each. A file which fails
// is reported in the returned failures and does not affect the others.
func (service *Service) Upload(ctx context.Context, kind Kind, files []*multipart.FileHeader) ([]*Asset, []UploadFailure, error) {
	if len(files) == 0 {
		return nil, nil, ErrNoFiles
	}

	assets := make([]*Asset, 0, len(files))
	failures := make([]UploadFailure, 0)
	for _, header := range files {
		asset, err := service.uploadOne(ctx, kind, header)
		if err != nil {
			log.Emit(logger.WARNING, "Upload of %s %q failed: %v\n", kind, header.Filename, err)
			failures = append(failures, UploadFailure{Filename: header.Filename, Error: err.Error()})
			continue
		}

		assets = append(assets, asset)
	}

	return assets, failures, nil
}

func (service *Service) uploadOne(ctx context.Context, kind Kind, header *multipart.FileHeader) (*Asset, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open upload: %w", storage.ErrFileSystem, err)
	}
	defer src.Close()

	name := filepath.Base(header.Filename)
	relative, err := service.files.Place(CategoryFor(kind), src, name)
	if err != nil {
		return nil, err
	}

	asset, err := service.Register(ctx, kind, relative, header.Filename)
	if err != nil {
		service.files.Remove(relative)
		return nil, err
	}

	return asset, nil
}

func (service *Service) List(kind Kind) ([]*Asset, error) {
	return service.store.ListAssets(kind)
}

func (service *Service) Get(id int64) (*Asset, error) {
	return service.store.GetAsset(id)
}

// Delete removes the asset's row and then, best effort, its file.
func (service *Service) Delete(id int64) error {
	asset, err := service.store.DeleteAsset(id)
	if err != nil {
		return err
	}

	service.files.Remove(asset.RelativePath)
	log.Emit(logger.REMOVE, "Deleted %s asset %d (%s)\n", asset.Kind, asset.ID, asset.RelativePath)
	service.eventBus.Dispatch(event.MEDIA_DELETE, asset.ID)
	return nil
}
