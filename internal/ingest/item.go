package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

type (
	IngestItemState int
	IngestItem      struct {
		ID      uuid.UUID       `json:"id"`
		Path    string          `json:"path"`
		State   IngestItemState `json:"state"`
		Trouble *Trouble        `json:"trouble,omitempty"`
	}
)

const (
	Idle IngestItemState = iota
	ImportHold
	Ingesting
	Troubled
)

var (
	ErrNoTrouble              = errors.New("ingestion has no trouble")
	ErrIngestNotFound         = errors.New("no ingest task could be found")
	ErrIngestBusy             = errors.New("ingest task is currently ingesting")
	ErrResolutionIncompatible = errors.New("provided resolution method is not valid for ingestion trouble")
)

// ingest probes the file of the item and persists it as a media asset.
// Any failure is returned as a Trouble for the item.
func (item *IngestItem) ingest(ctx context.Context, registrar Registrar, relativePath string) (*media.Asset, error) {
	log.Emit(logger.NEW, "Beginning ingestion of item %s\n", item)

	asset, err := registrar.RegisterDiscovered(ctx, relativePath)
	if err != nil {
		return nil, newTrouble(err)
	}

	log.Emit(logger.SUCCESS, "Ingested %s as %s asset %d\n", item.Path, asset.Kind, asset.ID)
	return asset, nil
}

func (item *IngestItem) modtimeDiff() (time.Duration, error) {
	itemInfo, err := os.Stat(item.Path)
	if err != nil {
		return 0, err
	}

	return time.Since(itemInfo.ModTime()), nil
}

func (item *IngestItem) String() string {
	return fmt.Sprintf("IngestItem{ID=%s state=%s}", item.ID, item.State)
}

func (s IngestItemState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ImportHold:
		return "IMPORT_HOLD"
	case Ingesting:
		return "INGESTING"
	case Troubled:
		return "TROUBLED"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}

func (s IngestItemState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
