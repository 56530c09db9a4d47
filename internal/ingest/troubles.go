package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hbomb79/Mediadesk/internal/database"
	"github.com/hbomb79/Mediadesk/internal/ffmpeg"
)

type (
	TroubleType int
	Trouble     struct {
		error
		tType TroubleType
	}

	ResolutionType int
)

const (
	ProbeFailure TroubleType = iota
	StorageFailure
	UnknownFailure
)

const (
	Retry ResolutionType = iota
	Abort
)

var allowedResolutionTypes = map[TroubleType][]ResolutionType{
	ProbeFailure:   {Abort, Retry},
	StorageFailure: {Abort, Retry},
	UnknownFailure: {Abort, Retry},
}

func newTrouble(err error) Trouble {
	switch {
	case errors.Is(err, ffmpeg.ErrProbe):
		return Trouble{error: err, tType: ProbeFailure}
	case errors.Is(err, database.ErrStorage):
		return Trouble{error: err, tType: StorageFailure}
	}

	return Trouble{error: err, tType: UnknownFailure}
}

func (t *Trouble) Type() TroubleType { return t.tType }

func (t *Trouble) AllowedResolutionTypes() []ResolutionType {
	if allowed, ok := allowedResolutionTypes[t.tType]; ok {
		return allowed
	}

	return []ResolutionType{}
}

func (t *Trouble) isResolutionTypeAllowed(resType ResolutionType) bool {
	return slices.Contains(t.AllowedResolutionTypes(), resType)
}

func (t *Trouble) Unwrap() error { return t.error }

func (t *Trouble) MarshalJSON() ([]byte, error) {
	allowed := t.AllowedResolutionTypes()
	resolutions := make([]string, len(allowed))
	for i, r := range allowed {
		resolutions[i] = r.String()
	}

	return json.Marshal(struct {
		Type        string   `json:"type"`
		Message     string   `json:"message"`
		Resolutions []string `json:"allowedResolutions"`
	}{t.tType.String(), t.Error(), resolutions})
}

func (t TroubleType) String() string {
	switch t {
	case ProbeFailure:
		return "PROBE_FAILURE"
	case StorageFailure:
		return "STORAGE_FAILURE"
	case UnknownFailure:
		return "UNKNOWN_FAILURE"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", t)
	}
}

func (r ResolutionType) String() string {
	switch r {
	case Retry:
		return "RETRY"
	case Abort:
		return "ABORT"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", r)
	}
}

// ParseResolutionType accepts the string form of a resolution type.
func ParseResolutionType(s string) (ResolutionType, error) {
	switch s {
	case Retry.String():
		return Retry, nil
	case Abort.String():
		return Abort, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrResolutionIncompatible, s)
}
