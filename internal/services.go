package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/ingest"
)

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		broadcaster
	}

	IngestService interface {
		RunnableService
		RemoveIngest(ingestID uuid.UUID) error
		GetIngest(ingestID uuid.UUID) *ingest.IngestItem
		GetAllIngests() []*ingest.IngestItem
		DiscoverNewFiles()
		ResolveTrouble(itemID uuid.UUID, method ingest.ResolutionType) error
	}
)
