package editor

import (
	"context"

	"github.com/hbomb79/Mediadesk/internal/reel"
)

type (
	// PageVideos are the downloaded videos of a page alongside every edit
	// attributed to the page.
	PageVideos struct {
		Videos       []*reel.DownloadedVideo `json:"videos"`
		EditedVideos []*Record               `json:"editedVideos"`
	}

	Service struct {
		store    DataStore
		compiler *Compiler
	}
)

func NewService(store DataStore, compiler *Compiler) *Service {
	return &Service{store: store, compiler: compiler}
}

func (service *Service) Edit(ctx context.Context, request Request) (*Record, error) {
	return service.compiler.Compile(ctx, request)
}

// History returns the edits of the video in the order they were made.
func (service *Service) History(videoID int64) ([]*Record, error) {
	if _, err := service.store.GetDownloadedVideo(videoID); err != nil {
		return nil, err
	}

	return service.store.EditHistory(videoID)
}

func (service *Service) RecordsForPage(pageID int64) ([]*Record, error) {
	return service.store.EditRecordsForPage(pageID)
}

func (service *Service) Videos(pageID int64) (*PageVideos, error) {
	videos, err := service.store.DownloadedVideosForPage(pageID)
	if err != nil {
		return nil, err
	}

	edits, err := service.store.EditRecordsForPage(pageID)
	if err != nil {
		return nil, err
	}

	return &PageVideos{Videos: videos, EditedVideos: edits}, nil
}

func (service *Service) Record(id int64) (*Record, error) {
	return service.store.GetEditRecord(id)
}
