package edits

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/labstack/echo/v4"
)

type (
	Service interface {
		Edit(ctx context.Context, request editor.Request) (*editor.Record, error)
		History(videoID int64) ([]*editor.Record, error)
		Videos(pageID int64) (*editor.PageVideos, error)
	}

	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/videos/:pageId/", controller.videos)
	eg.POST("/process/", controller.process)
	eg.GET("/history/:videoId/", controller.history)
}

// videos lists the downloaded videos of a page, along with every edit
// which has been made for the page.
func (controller *Controller) videos(ec echo.Context) error {
	pageID, err := strconv.ParseInt(ec.Param("pageId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Page ID is not a valid integer")
	}

	videos, err := controller.service.Videos(pageID)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, videos)
}

// process applies an edit, responding with the record of the edit once the
// output has been produced. Validation of the request is performed by the
// editor itself. The edit is not cancelled if the client goes away.
func (controller *Controller) process(ec echo.Context) error {
	var request editor.Request
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}

	record, err := controller.service.Edit(context.WithoutCancel(ec.Request().Context()), request)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, record)
}

func (controller *Controller) history(ec echo.Context) error {
	videoID, err := strconv.ParseInt(ec.Param("videoId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Video ID is not a valid integer")
	}

	history, err := controller.service.History(videoID)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, history)
}
