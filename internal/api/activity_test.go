package api_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/http/websocket"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/tests/helpers"
	"github.com/hbomb79/go-chanassert"
	"github.com/stretchr/testify/assert"
)

func runGateway(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.gateway.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	server := httptest.NewServer(f.gateway)
	t.Cleanup(server.Close)

	return server
}

func TestActivity_BroadcastsReachSocket(t *testing.T) {
	f := newFixture(t)
	item := &ingest.IngestItem{ID: uuid.New(), Path: "/srv/uploads/raw/clip.mp4", State: ingest.Troubled}
	f.ingests.items = []*ingest.IngestItem{item}

	server := runGateway(t, f)
	messages := helpers.ActivityMessages(t, server.URL+"/api/mediadesk/v1/activity/ws/")

	exp := chanassert.NewChannelExpecter(messages).Expect(
		chanassert.ExactlyNOf(1, helpers.MatchIngestUpdate(item.Path, ingest.Troubled)),
		chanassert.ExactlyNOf(1, helpers.MatchMediaUpdate(1, false)),
		chanassert.ExactlyNOf(1, helpers.MatchMediaUpdate(9, true)),
	)
	exp.Listen()

	assert.NoError(t, f.gateway.BroadcastIngestUpdate(item.ID))
	assert.NoError(t, f.gateway.BroadcastMediaUpdate(1))
	assert.NoError(t, f.gateway.BroadcastMediaUpdate(9))

	exp.AssertSatisfied(t, 2*time.Second)
}

func TestActivity_DownloadUpdateForUnknownBatch(t *testing.T) {
	f := newFixture(t)
	server := runGateway(t, f)
	messages := helpers.ActivityMessages(t, server.URL+"/api/mediadesk/v1/activity/ws/")

	exp := chanassert.NewChannelExpecter(messages).Expect(
		chanassert.ExactlyNOf(1, helpers.MatchSocketMessage("DOWNLOAD_UPDATE", websocket.Update)),
	)
	exp.Listen()

	assert.NoError(t, f.gateway.BroadcastDownloadUpdate(uuid.New()))
	exp.AssertSatisfied(t, 2*time.Second)
}
