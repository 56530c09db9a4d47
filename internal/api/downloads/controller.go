package downloads

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/labstack/echo/v4"
)

type (
	Service interface {
		Batches() []download.Snapshot
		Batch(id uuid.UUID) *download.Batch
	}

	// Controller exposes the download batches which are running, or which
	// have recently finished.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
}

func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.service.Batches())
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Batch ID is not a valid UUID")
	}

	batch := controller.service.Batch(id)
	if batch == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ec.JSON(http.StatusOK, batch.Snapshot())
}
