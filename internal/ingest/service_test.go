// service_test ensures that files dropped in to the raw uploads
// directory are correctly detected, held, and registered as
// media assets. The registration and DB integration is mocked.
package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/internal/storage"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/hbomb79/Mediadesk/tests/helpers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

type mockRegistrar struct{ mock.Mock }

func (m *mockRegistrar) RegisterDiscovered(_ context.Context, relativePath string) (*media.Asset, error) {
	args := m.Called(relativePath)
	asset, _ := args.Get(0).(*media.Asset)
	return asset, args.Error(1)
}

type mockDataStore struct{ mock.Mock }

func (m *mockDataStore) MediaRelativePaths() ([]string, error) {
	args := m.Called()
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

type fixture struct {
	files     *storage.FileStore
	root      string
	registrar *mockRegistrar
	store     *mockDataStore
	metrics   *metrics.Metrics
	bus       event.EventCoordinator
}

func newFixture(t *testing.T) *fixture {
	files, root := helpers.NewFileStore(t)
	return &fixture{files: files, root: root, registrar: &mockRegistrar{}, store: &mockDataStore{}, metrics: metrics.New(), bus: event.New()}
}

// dropFile writes a file in to the raw uploads directory, backdating
// its modtime by the age given.
func (f *fixture) dropFile(t *testing.T, relative string, age time.Duration) string {
	path := filepath.Join(f.root, relative)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(relative), 0o644))

	modTime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func (f *fixture) start(t *testing.T, config ingest.Config) *ingest.Service {
	srv, err := ingest.New(config, f.files, f.store, f.registrar, f.bus, f.metrics)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return srv
}

func TestIngest_RegistersSettledFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dropFile(t, "uploads/clip.mp4", time.Hour)
	f.dropFile(t, "uploads/nested/song.mp3", time.Hour)
	f.dropFile(t, "uploads/temp_video/known.mp4", time.Hour)

	f.store.On("MediaRelativePaths").Return([]string{}, nil)
	f.registrar.On("RegisterDiscovered", "uploads/clip.mp4").Return(&media.Asset{ID: 1, Kind: media.Video}, nil).Once()
	f.registrar.On("RegisterDiscovered", "uploads/nested/song.mp3").Return(&media.Asset{ID: 2, Kind: media.Audio}, nil).Once()

	completed := make(event.HandlerChannel, 10)
	f.bus.RegisterHandlerChannel(completed, event.INGEST_COMPLETE)

	srv := f.start(t, ingest.Config{ForceSyncSeconds: 100, IngestionParallelism: 2})

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Len(c, completed, 2)
		assert.Empty(c, srv.GetAllIngests(), "ingested items leave the queue")
	}, 2*time.Second, 50*time.Millisecond)

	f.registrar.AssertNotCalled(t, "RegisterDiscovered", "uploads/temp_video/known.mp4")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IngestTotal.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestIngest_KnownAndBlacklistedFilesIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dropFile(t, "uploads/existing.mp4", time.Hour)
	f.dropFile(t, "uploads/partial.mp4.part", time.Hour)

	f.store.On("MediaRelativePaths").Return([]string{"uploads/existing.mp4"}, nil)

	srv := f.start(t, ingest.Config{ForceSyncSeconds: 100, Blacklist: []string{`\.part$`}})
	srv.DiscoverNewFiles()

	assert.Never(t, func() bool { return len(srv.GetAllIngests()) > 0 }, time.Second, 100*time.Millisecond)
	f.registrar.AssertNotCalled(t, "RegisterDiscovered", mock.Anything)
}

func TestIngest_NewFileHeldUntilSettled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dropFile(t, "uploads/copying.mp4", 0)

	f.store.On("MediaRelativePaths").Return([]string{}, nil)
	f.registrar.On("RegisterDiscovered", "uploads/copying.mp4").Return(nil, ffmpeg.ErrProbe)

	srv := f.start(t, ingest.Config{ForceSyncSeconds: 100, RequiredModTimeAgeSeconds: 2})

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		all := srv.GetAllIngests()
		if assert.Len(c, all, 1) {
			assert.Equal(c, ingest.ImportHold, all[0].State)
		}
	}, time.Second, 100*time.Millisecond)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		all := srv.GetAllIngests()
		if assert.Len(c, all, 1) && assert.NotNil(c, all[0].Trouble) {
			assert.Equal(c, ingest.Troubled, all[0].State)
			assert.Equal(c, ingest.ProbeFailure, all[0].Trouble.Type())
		}
	}, 4*time.Second, 100*time.Millisecond)
}

func TestIngest_TroubleRetryAndAbort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dropFile(t, "uploads/flaky.mp4", time.Hour)

	f.store.On("MediaRelativePaths").Return([]string{}, nil)
	f.registrar.On("RegisterDiscovered", "uploads/flaky.mp4").Return(nil, errors.Join(database.ErrStorage, errors.New("connection reset"))).Once()
	f.registrar.On("RegisterDiscovered", "uploads/flaky.mp4").Return(nil, ffmpeg.ErrProbe).Once()

	srv := f.start(t, ingest.Config{ForceSyncSeconds: 100})

	troubled := func(expected ingest.TroubleType) *ingest.IngestItem {
		var item *ingest.IngestItem
		require.EventuallyWithT(t, func(c *assert.CollectT) {
			all := srv.GetAllIngests()
			if assert.Len(c, all, 1) && assert.Equal(c, ingest.Troubled, all[0].State) {
				assert.Equal(c, expected, all[0].Trouble.Type())
				item = all[0]
			}
		}, 2*time.Second, 50*time.Millisecond)

		return item
	}

	item := troubled(ingest.StorageFailure)
	require.NoError(t, srv.ResolveTrouble(item.ID, ingest.Retry))

	item = troubled(ingest.ProbeFailure)
	require.NoError(t, srv.ResolveTrouble(item.ID, ingest.Abort))
	assert.Empty(t, srv.GetAllIngests())

	srv.DiscoverNewFiles()
	assert.Empty(t, srv.GetAllIngests(), "aborted files are not rediscovered")
	assert.ErrorIs(t, srv.ResolveTrouble(item.ID, ingest.Retry), ingest.ErrIngestNotFound)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailed)))
}
