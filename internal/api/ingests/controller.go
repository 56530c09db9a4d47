package ingests

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/labstack/echo/v4"
)

type (
	ResolveTroubleRequest struct {
		Method string `json:"method"`
	}

	Service interface {
		GetAllIngests() []*ingest.IngestItem
		GetIngest(id uuid.UUID) *ingest.IngestItem
		RemoveIngest(id uuid.UUID) error
		DiscoverNewFiles()
		ResolveTrouble(id uuid.UUID, method ingest.ResolutionType) error
	}

	// Controller exposes the files found in the raw upload directory which
	// are waiting to be, or failed to be, ingested.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/poll/", controller.performPoll)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
	eg.POST("/:id/trouble-resolution/", controller.postTroubleResolution)
}

func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.service.GetAllIngests())
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	item := controller.service.GetIngest(id)
	if item == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, item)
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	if err := controller.service.RemoveIngest(id); err != nil {
		return err
	}

	return ec.NoContent(http.StatusOK)
}

// postTroubleResolution resolves the trouble of a TROUBLED ingest using the
// method given, which must be one of the resolutions the trouble allows.
func (controller *Controller) postTroubleResolution(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	var request ResolveTroubleRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}

	method, err := ingest.ParseResolutionType(request.Method)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := controller.service.ResolveTrouble(id, method); err != nil {
		return err
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) performPoll(ec echo.Context) error {
	controller.service.DiscoverNewFiles()

	return ec.NoContent(http.StatusOK)
}
