package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/api"
	"github.com/hbomb79/Mediadesk/internal/api/collections"
	"github.com/hbomb79/Mediadesk/internal/api/medias"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/download"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/page"
	"github.com/hbomb79/Mediadesk/internal/reel"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

// The stubs embed the service interfaces so that only the methods a test
// exercises need implementing; calling anything else panics.
type (
	pageStub struct {
		pages   []*page.Page
		deleted []int64
	}

	collectionStub struct {
		collections.Service
	}

	mediaStub struct {
		medias.Service
		assets  map[int64]*media.Asset
		deleted []int64
	}

	downloadStub struct {
		api.DownloadService
	}

	editorStub struct {
		api.EditorService
	}

	ingestStub struct {
		items []*ingest.IngestItem
	}
)

func (stub *pageStub) Sync(context.Context) ([]*page.Page, error) { return stub.pages, nil }
func (stub *pageStub) List() ([]*page.Page, error)                { return stub.pages, nil }
func (stub *pageStub) Update(id int64, name string, _ *string) (*page.Page, error) {
	for _, p := range stub.pages {
		if p.ID == id {
			p.Name = name
			return p, nil
		}
	}

	return nil, fmt.Errorf("page %d: %w", id, database.ErrNotFound)
}

func (stub *pageStub) Delete(id int64) error {
	stub.deleted = append(stub.deleted, id)
	return nil
}

func (stub *collectionStub) Page(id int64) (*reel.PageDetails, error) {
	return nil, fmt.Errorf("extracted page %d: %w", id, database.ErrNotFound)
}

func (stub *mediaStub) List(kind media.Kind) ([]*media.Asset, error) {
	out := make([]*media.Asset, 0)
	for _, asset := range stub.assets {
		if asset.Kind == kind {
			out = append(out, asset)
		}
	}

	return out, nil
}

func (stub *mediaStub) Get(id int64) (*media.Asset, error) {
	if asset, ok := stub.assets[id]; ok {
		return asset, nil
	}

	return nil, fmt.Errorf("asset %d: %w", id, database.ErrNotFound)
}

func (stub *mediaStub) Delete(id int64) error {
	stub.deleted = append(stub.deleted, id)
	return nil
}

func (stub *downloadStub) Batches() []download.Snapshot    { return []download.Snapshot{} }
func (stub *downloadStub) Batch(uuid.UUID) *download.Batch { return nil }

func (stub *ingestStub) GetAllIngests() []*ingest.IngestItem    { return stub.items }
func (stub *ingestStub) GetIngest(id uuid.UUID) *ingest.IngestItem {
	for _, item := range stub.items {
		if item.ID == id {
			return item
		}
	}

	return nil
}
func (stub *ingestStub) RemoveIngest(uuid.UUID) error            { return ingest.ErrIngestNotFound }
func (stub *ingestStub) DiscoverNewFiles()                       {}
func (stub *ingestStub) ResolveTrouble(uuid.UUID, ingest.ResolutionType) error {
	return ingest.ErrNoTrouble
}

type fixture struct {
	gateway *api.RestGateway
	pages   *pageStub
	media   *mediaStub
	ingests *ingestStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pages := &pageStub{pages: []*page.Page{{ID: 1, ExternalPageID: "1001", Name: "Daily Clips"}}}
	media := &mediaStub{assets: map[int64]*media.Asset{
		1: {ID: 1, Kind: media.Video, Filename: "intro.mp4"},
		2: {ID: 2, Kind: media.Audio, Filename: "theme.mp3"},
	}}

	ingests := &ingestStub{}

	config := &api.RestConfig{HostAddr: "127.0.0.1:0"}
	gateway := api.NewRestGateway(config, api.Services{
		Ingests:     ingests,
		Downloads:   &downloadStub{},
		Media:       media,
		Pages:       pages,
		Collections: &collectionStub{},
		Editor:      &editorStub{},
		Metrics:     metrics.New(),
	}, validator.New(), t.TempDir())

	return &fixture{gateway: gateway, pages: pages, media: media, ingests: ingests}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.gateway.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.APIError {
	t.Helper()

	var apiErr api.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestGateway_TrailingSlashIsOptional(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/mediadesk/v1/pages", "/api/mediadesk/v1/pages/"} {
		rec := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		var pages []*page.Page
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pages))
		require.Len(t, pages, 1)
		assert.Equal(t, "Daily Clips", pages[0].Name)
	}
}

func TestGateway_UpdatePage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/mediadesk/v1/pages/1/", `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", f.pages.pages[0].Name)

	rec = f.do(t, http.MethodPut, "/api/mediadesk/v1/pages/1/", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPut, "/api/mediadesk/v1/pages/9/", `{"name":"Missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPut, "/api/mediadesk/v1/pages/abc/", `{"name":"Bad"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_MediaIsScopedByKind(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/mediadesk/v1/audio/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []*media.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "theme.mp3", assets[0].Filename)

	// Audio cannot be deleted through the video routes
	rec = f.do(t, http.MethodDelete, "/api/mediadesk/v1/videos/2/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.media.deleted)

	rec = f.do(t, http.MethodDelete, "/api/mediadesk/v1/videos/1/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1}, f.media.deleted)
}

func TestGateway_InvalidDownloadRejectedBeforeStreaming(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/mediadesk/v1/videos/download/", `{"url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestGateway_UnknownCollectionReels(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/mediadesk/v1/collections/42/reels/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_IngestErrors(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	rec := f.do(t, http.MethodDelete, "/api/mediadesk/v1/ingests/"+id+"/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/mediadesk/v1/ingests/"+id+"/trouble-resolution/", `{"method":"RETRY"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INGEST_NOT_TROUBLED", decodeError(t, rec).Code)
}

func TestGateway_ServesMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
