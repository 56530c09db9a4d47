package pages

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/labstack/echo/v4"
)

type (
	Service interface {
		Sync(ctx context.Context) ([]*page.Page, error)
		List() ([]*page.Page, error)
		Update(id int64, name string, pageURL *string) (*page.Page, error)
		Delete(id int64) error
	}

	UpdateRequest struct {
		Name    string  `json:"name" validate:"required"`
		PageURL *string `json:"url" validate:"omitempty,url"`
	}

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
	eg.POST("/sync/", controller.sync)
	eg.PUT("/:id/", controller.update)
	eg.DELETE("/:id/", controller.delete)
}

func (controller *Controller) list(ec echo.Context) error {
	pages, err := controller.service.List()
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, pages)
}

// sync refreshes the pages from the Graph API, responding with the pages
// which were saved.
func (controller *Controller) sync(ec echo.Context) error {
	pages, err := controller.service.Sync(ec.Request().Context())
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, pages)
}

func (controller *Controller) update(ec echo.Context) error {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Page ID is not a valid integer")
	}

	var request UpdateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return err
	}

	updated, err := controller.service.Update(id, request.Name, request.PageURL)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, updated)
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Page ID is not a valid integer")
	}

	if err := controller.service.Delete(id); err != nil {
		return err
	}

	return ec.NoContent(http.StatusOK)
}
