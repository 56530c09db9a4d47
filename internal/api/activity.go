package api

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/http/websocket"
)

const (
	TITLE_INGEST_UPDATE    = "INGEST_UPDATE"
	TITLE_DOWNLOAD_UPDATE  = "DOWNLOAD_UPDATE"
	TITLE_MEDIA_UPDATE     = "MEDIA_UPDATE"
	TITLE_RECONCILE_UPDATE = "RECONCILE_UPDATE"
	TITLE_EDIT_COMPLETE    = "EDIT_COMPLETE"
)

type (
	broadcaster struct {
		socketHub *websocket.SocketHub
		services  Services
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, services Services) *broadcaster {
	return &broadcaster{socketHub: socketHub, services: services}
}

func (hub *broadcaster) BroadcastIngestUpdate(id uuid.UUID) error {
	// A nil ingest indicates it has completed or been removed
	hub.broadcast(TITLE_INGEST_UPDATE, map[string]any{"ingestId": id, "ingest": hub.services.Ingests.GetIngest(id)})
	return nil
}

func (hub *broadcaster) BroadcastDownloadUpdate(id uuid.UUID) error {
	update := map[string]any{"batchId": id, "batch": nil}
	if batch := hub.services.Downloads.Batch(id); batch != nil {
		update["batch"] = batch.Snapshot()
	}

	hub.broadcast(TITLE_DOWNLOAD_UPDATE, update)
	return nil
}

func (hub *broadcaster) BroadcastMediaUpdate(id int64) error {
	asset, err := hub.services.Media.Get(id)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to fetch media %d for broadcast: %w", id, err)
	}

	// Deleted media is broadcast with a nil body
	hub.broadcast(TITLE_MEDIA_UPDATE, map[string]any{"mediaId": id, "media": asset})
	return nil
}

func (hub *broadcaster) BroadcastReconcileUpdate(pageID int64) error {
	details, err := hub.services.Collections.Page(pageID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to fetch page %d for broadcast: %w", pageID, err)
	}

	update := map[string]any{"pageId": pageID, "page": nil}
	if details != nil {
		update["page"] = details.Page
	}

	hub.broadcast(TITLE_RECONCILE_UPDATE, update)
	return nil
}

func (hub *broadcaster) BroadcastEditComplete(recordID int64) error {
	record, err := hub.services.Editor.Record(recordID)
	if err != nil {
		return fmt.Errorf("failed to fetch edit record %d for broadcast: %w", recordID, err)
	}

	hub.broadcast(TITLE_EDIT_COMPLETE, map[string]any{"recordId": recordID, "record": record})
	return nil
}

func (hub *broadcaster) broadcast(title string, body map[string]any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  body,
		Type:  websocket.Update,
	})
}
