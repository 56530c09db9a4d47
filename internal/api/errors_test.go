package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/facebook"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		status       int
		code         string
		hidesMessage bool
	}{
		{"NotFound", fmt.Errorf("page 4: %w", database.ErrNotFound), http.StatusNotFound, "NOT_FOUND", false},
		{"IngestBusy", ingest.ErrIngestBusy, http.StatusConflict, "INGEST_BUSY", false},
		{"InvalidDocument", fmt.Errorf("%w: missing reels", facebook.ErrInvalidDocument), http.StatusBadRequest, "INVALID_SCRAPE_DOCUMENT", false},
		{"MissingToken", facebook.ErrMissingToken, http.StatusServiceUnavailable, "FACEBOOK_NOT_CONFIGURED", false},
		{"Storage", fmt.Errorf("%w: connection reset", database.ErrStorage), http.StatusInternalServerError, "STORAGE_FAILURE", true},
		{"EditFailure", &editor.EditError{Stage: "encode", Err: errors.New("exit status 1")}, http.StatusInternalServerError, "EDIT_FAILED", false},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			apiErr := toAPIError(test.err)
			assert.Equal(t, test.status, apiErr.Status)
			assert.Equal(t, test.code, apiErr.Code)
			if test.hidesMessage {
				assert.NotContains(t, apiErr.Message, test.err.Error())
				assert.Equal(t, test.err.Error(), apiErr.InternalMessage)
			}
		})
	}
}

func TestToAPIError_Validation(t *testing.T) {
	type request struct {
		Name string `validate:"required"`
	}

	err := validator.New().Struct(request{})
	apiErr := toAPIError(err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)

	// Validation performed by the editor is reported as invalid parameters
	apiErr = toAPIError(fmt.Errorf("%w: %w", editor.ErrInvalidParams, err))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_EDIT_PARAMETERS", apiErr.Code)
}

func TestToAPIError_PassesThroughAPIError(t *testing.T) {
	original := APIError{Status: http.StatusTeapot, Code: "TEAPOT", Message: "short and stout"}
	assert.Equal(t, original, toAPIError(fmt.Errorf("wrapped: %w", original)))
}
