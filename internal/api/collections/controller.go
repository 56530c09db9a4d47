package collections

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/labstack/echo/v4"
)

// maxDocumentSize bounds the scrape documents accepted by the upload endpoint.
const maxDocumentSize = 32 << 20

type (
	Service interface {
		Import(ctx context.Context, raw []byte, originalName string) (*reel.ImportResult, error)
		Reconcile(ctx context.Context, pageID int64, subdirectory string) (*reel.Summary, error)
		Pages(query string) ([]*reel.PageSummary, error)
		Page(id int64) (*reel.PageDetails, error)
		Reels(pageID int64) ([]reel.ReelView, error)
		DeletePage(id int64) error
	}

	DownloadRequest struct {
		Subdirectory string `json:"subdirectory" validate:"max=255"`
	}

	// Controller exposes the pages extracted from uploaded scrape documents
	// (the 'collections'), and the reconciliation of their reels to disk.
	Controller struct {
		validate *validator.Validate
		service  Service
	}
)

func New(validate *validator.Validate, service Service) *Controller {
	return &Controller{validate: validate, service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/upload/", controller.upload)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.GET("/:id/reels/", controller.reels)
	eg.POST("/:id/download/", controller.download)
}

// list returns the extracted pages, optionally filtered and ranked by the
// 'q' query parameter.
func (controller *Controller) list(ec echo.Context) error {
	pages, err := controller.service.Pages(ec.QueryParam("q"))
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, pages)
}

func (controller *Controller) upload(ec echo.Context) error {
	header, err := ec.FormFile("jsonFile")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Multipart field 'jsonFile' is required")
	}
	if header.Size > maxDocumentSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Scrape document is too large")
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded document: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("failed to read uploaded document: %w", err)
	}

	result, err := controller.service.Import(ec.Request().Context(), raw, header.Filename)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, result)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := pageID(ec)
	if err != nil {
		return err
	}

	details, err := controller.service.Page(id)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, details)
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := pageID(ec)
	if err != nil {
		return err
	}

	if err := controller.service.DeletePage(id); err != nil {
		return err
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) reels(ec echo.Context) error {
	id, err := pageID(ec)
	if err != nil {
		return err
	}

	// Ensure the page exists so an unknown page is a 404 rather than an empty list
	if _, err := controller.service.Page(id); err != nil {
		return err
	}

	reels, err := controller.service.Reels(id)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, reels)
}

// download reconciles the reels of the page with the disk, downloading
// any which are missing. The request blocks until every reel has been
// attempted.
func (controller *Controller) download(ec echo.Context) error {
	id, err := pageID(ec)
	if err != nil {
		return err
	}

	var request DownloadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return err
	}

	summary, err := controller.service.Reconcile(context.WithoutCancel(ec.Request().Context()), id, request.Subdirectory)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, summary)
}

func pageID(ec echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Page ID is not a valid integer")
	}

	return id, nil
}
