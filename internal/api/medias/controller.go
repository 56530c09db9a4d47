package medias

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/api/util"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/progress"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("MediaController")

type (
	Service interface {
		Upload(ctx context.Context, kind media.Kind, files []*multipart.FileHeader) ([]*media.Asset, []media.UploadFailure, error)
		List(kind media.Kind) ([]*media.Asset, error)
		Get(id int64) (*media.Asset, error)
		Delete(id int64) error
	}

	DownloadService interface {
		Start(ctx context.Context, request download.Request, sink progress.Sink) (*download.Batch, error)
		ResolvePlaylist(ctx context.Context, url string) ([]extract.Entry, error)
	}

	DownloadRequest struct {
		URL  string `json:"url" validate:"required,http_url"`
		Type string `json:"type" validate:"omitempty,oneof=single playlist"`
	}

	PlaylistRequest struct {
		URL string `json:"url" validate:"required,http_url"`
	}

	UploadResponse struct {
		Assets []*media.Asset        `json:"assets"`
		Errors []media.UploadFailure `json:"errors,omitempty"`
	}

	PlaylistEntryDto struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}

	// Controller serves the routes for one kind of media. The same
	// controller type is mounted for both videos and audio.
	Controller struct {
		validate  *validator.Validate
		kind      media.Kind
		format    extract.Format
		field     string
		service   Service
		downloads DownloadService
	}
)

func New(validate *validator.Validate, kind media.Kind, service Service, downloads DownloadService) *Controller {
	format := extract.FormatVideo
	if kind == media.Audio {
		format = extract.FormatAudio
	}

	return &Controller{validate: validate, kind: kind, format: format, field: string(kind), service: service, downloads: downloads}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/upload/", controller.upload)
	eg.DELETE("/:id/", controller.delete)
	eg.POST("/download/", controller.download)
	eg.POST("/playlist-urls/", controller.playlistURLs)
}

func (controller *Controller) list(ec echo.Context) error {
	assets, err := controller.service.List(controller.kind)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, assets)
}

// upload accepts one or more files in the multipart field named after the
// kind of media (e.g. 'video'). Each file is stored independently: the
// response lists the assets created alongside any files which failed.
func (controller *Controller) upload(ec echo.Context) error {
	form, err := ec.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Multipart body illegal: %v", err))
	}

	assets, failures, err := controller.service.Upload(ec.Request().Context(), controller.kind, form.File[controller.field])
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, UploadResponse{Assets: assets, Errors: failures})
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "ID is not a valid integer")
	}

	asset, err := controller.service.Get(id)
	if err != nil {
		return err
	} else if asset.Kind != controller.kind {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("No %s with ID %d", controller.kind, id))
	}

	if err := controller.service.Delete(id); err != nil {
		return err
	}

	return ec.NoContent(http.StatusOK)
}

// download streams the progress of the batch to the client as server-sent
// events, returning once the batch has finished. The request is validated
// before the stream is opened so that bad requests receive a plain 400.
func (controller *Controller) download(ec echo.Context) error {
	var request DownloadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return err
	}

	reporter, err := progress.Open(ec.Response())
	if err != nil {
		return err
	}
	defer reporter.Close()

	ctx := ec.Request().Context()
	batch, err := controller.downloads.Start(ctx, download.Request{
		URL:      request.URL,
		Format:   controller.format,
		Playlist: request.Type == "playlist",
	}, reporter)
	if err != nil {
		controllerLogger.Emit(logger.WARNING, "Failed to start %s download of %s: %v\n", controller.kind, request.URL, err)
		return reporter.Emit(progress.Event{Type: progress.ErrorEvent, Message: "Failed to start download", Error: err.Error()})
	}

	select {
	case <-batch.Done():
	case <-ctx.Done():
		controllerLogger.Emit(logger.DEBUG, "Client for batch %s disconnected, batch continues in background\n", batch.ID())
	}

	return nil
}

func (controller *Controller) playlistURLs(ec echo.Context) error {
	var request PlaylistRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return err
	}

	entries, err := controller.downloads.ResolvePlaylist(ec.Request().Context(), request.URL)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, map[string]any{"urls": util.ApplyConversion(entries, playlistEntryToDto)})
}

func playlistEntryToDto(entry extract.Entry) PlaylistEntryDto {
	return PlaylistEntryDto{URL: entry.Location(), Title: entry.Title}
}
