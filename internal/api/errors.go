package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/extract"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/labstack/echo/v4"
)

type (
	APIError struct {
		// Human readable error display message
		Message string `json:"message"`

		// A machine readable and stable identifier for the error case being represented
		Code string `json:"code"`

		// Present only for failed edits, describing the ffmpeg invocation
		Diagnostic *ffmpeg.Diagnostic `json:"diagnostic,omitempty"`

		// Used to alter the HTTP response status in accordance with the error
		Status int `json:"-"`

		// Additional message for internal logging only
		InternalMessage string `json:"-"`
	}

	errorMapping struct {
		target error
		status int
		code   string
	}
)

func (err APIError) Error() string {
	return fmt.Sprintf("api error: %s", err.Message)
}

// Order matters: the first mapping the error matches wins. Edit failures
// are handled separately as they carry a diagnostic.
var errorMappings = []errorMapping{
	{database.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ingest.ErrIngestNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ingest.ErrIngestBusy, http.StatusConflict, "INGEST_BUSY"},
	{ingest.ErrNoTrouble, http.StatusBadRequest, "INGEST_NOT_TROUBLED"},
	{ingest.ErrResolutionIncompatible, http.StatusBadRequest, "RESOLUTION_INCOMPATIBLE"},
	{editor.ErrInvalidParams, http.StatusBadRequest, "INVALID_EDIT_PARAMETERS"},
	{download.ErrInvalidRequest, http.StatusBadRequest, "INVALID_DOWNLOAD_REQUEST"},
	{page.ErrInvalidUpdate, http.StatusBadRequest, "INVALID_PAGE_UPDATE"},
	{media.ErrNoFiles, http.StatusBadRequest, "NO_FILES"},
	{media.ErrUnknownKind, http.StatusBadRequest, "UNKNOWN_MEDIA_KIND"},
	{facebook.ErrInvalidDocument, http.StatusBadRequest, "INVALID_SCRAPE_DOCUMENT"},
	{facebook.ErrInvalidURL, http.StatusBadRequest, "INVALID_FACEBOOK_URL"},
	{facebook.ErrMissingToken, http.StatusServiceUnavailable, "FACEBOOK_NOT_CONFIGURED"},
	{facebook.ErrGraph, http.StatusBadGateway, "GRAPH_API_FAILURE"},
	{extract.ErrDownload, http.StatusBadGateway, "EXTRACTOR_FAILURE"},
	{database.ErrStorage, http.StatusInternalServerError, "STORAGE_FAILURE"},
}

// toAPIError converts errors returned by the services in to an APIError.
// Errors which are not recognised become a generic 500, with the original
// error kept for logging only.
func toAPIError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && !errors.Is(err, editor.ErrInvalidParams) {
		return APIError{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: validationErrs.Error()}
	}

	var editErr *editor.EditError
	if errors.As(err, &editErr) {
		return APIError{
			Status:          http.StatusInternalServerError,
			Code:            "EDIT_FAILED",
			Message:         editErr.Error(),
			Diagnostic:      editErr.Diagnostic,
			InternalMessage: editErr.Error(),
		}
	}

	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			apiErr := APIError{Status: mapping.status, Code: mapping.code, Message: err.Error()}
			if mapping.status >= http.StatusInternalServerError {
				apiErr.Message = http.StatusText(mapping.status)
				apiErr.InternalMessage = err.Error()
			}

			return apiErr
		}
	}

	return APIError{Status: http.StatusInternalServerError, InternalMessage: err.Error()}
}

// httpErrorHandler returns an echo HTTP error handler which renders service
// errors as APIErrors. Errors raised by echo itself (routing, binding) are
// passed to the fallback handler provided.
func httpErrorHandler(fallbackHandler echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, ec echo.Context) {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			fallbackHandler(err, ec)
			return
		}

		apiErr := toAPIError(err)
		if apiErr.Status == 0 {
			apiErr.Status = http.StatusInternalServerError
		}
		if len(apiErr.Message) == 0 {
			apiErr.Message = http.StatusText(apiErr.Status)
		}
		if len(apiErr.Code) == 0 {
			apiErr.Code = http.StatusText(apiErr.Status)
		}
		if len(apiErr.InternalMessage) > 0 {
			log.Errorf("%s request to %s failed, internal error: %s\n", ec.Request().Method, ec.Request().RequestURI, apiErr.InternalMessage)
		}

		if ec.Response().Committed {
			return
		}
		if err := ec.JSON(apiErr.Status, apiErr); err != nil {
			log.Warnf("Failed to write error response: %v\n", err)
		}
	}
}
