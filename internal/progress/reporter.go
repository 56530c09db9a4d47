// Package progress streams the lifecycle of a long running batch to an
// HTTP client as server-sent events.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var (
	log = logger.Get("Progress")

	ErrReporterClosed   = errors.New("progress reporter is closed")
	ErrFlushUnsupported = errors.New("response writer does not support flushing")
)

type EventType string

const (
	ProgressEvent EventType = "progress"
	ErrorEvent    EventType = "error"
	CompleteEvent EventType = "complete"
)

type ItemStatus string

const (
	StatusDownloading ItemStatus = "downloading"
	StatusCompleted   ItemStatus = "completed"
)

type (
	// Current describes the item a progress event refers to.
	Current struct {
		Title     string     `json:"title"`
		Filename  string     `json:"filename"`
		Directory string     `json:"directory"`
		Status    ItemStatus `json:"status"`
		Size      int64      `json:"size,omitempty"`
		Duration  float64    `json:"duration,omitempty"`
	}

	PlaylistInfo struct {
		Name           string `json:"name"`
		Path           string `json:"path"`
		TotalItems     int    `json:"totalItems"`
		CompletedItems *int   `json:"completedItems,omitempty"`
		Errors         *int   `json:"errors,omitempty"`
	}

	// ItemFailure is attached to an 'error' event raised for a single item.
	ItemFailure struct {
		Title     string `json:"title"`
		Directory string `json:"directory"`
		Error     string `json:"error"`
	}

	// FailedItem is an entry in the error list of the 'complete' event. Index
	// is the one-based position of the item in the batch.
	FailedItem struct {
		Index int    `json:"videoId"`
		Title string `json:"title"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}

	// Event is a single frame sent to the client. Which fields are populated
	// depends on the Type: per-item 'error' events carry Video, the 'complete'
	// event carries Errors/Videos/ErrorList, and a batch that failed to start
	// is reported by an 'error' event carrying only Message and Error.
	Event struct {
		Type         EventType     `json:"type"`
		BatchID      string        `json:"batchId,omitempty"`
		Total        int           `json:"total"`
		Completed    int           `json:"completed"`
		Current      *Current      `json:"current,omitempty"`
		Message      string        `json:"message,omitempty"`
		PlaylistInfo *PlaylistInfo `json:"playlistInfo,omitempty"`
		Video        *ItemFailure  `json:"video,omitempty"`
		Videos       any           `json:"videos,omitempty"`
		Errors       *int          `json:"errors,omitempty"`
		ErrorList    []FailedItem  `json:"errorList,omitempty"`
		Error        string        `json:"error,omitempty"`
	}

	// Sink receives the events of a single batch, in order.
	Sink interface {
		Emit(Event) error
	}

	// Reporter is a Sink which writes each event as an SSE 'data' frame to
	// the response writer it was opened on, flushing after every frame.
	Reporter struct {
		mutex   sync.Mutex
		writer  http.ResponseWriter
		flusher http.Flusher
		closed  bool
		broken  bool
	}
)

// Open writes the SSE headers to the response writer provided and returns
// a Reporter bound to it. The writer must support flushing.
func Open(w http.ResponseWriter) (*Reporter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlushUnsupported
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Reporter{writer: w, flusher: flusher}, nil
}

// Emit writes the event as a single frame. Once the client has gone away,
// writes are dropped silently (the batch continues regardless). Emitting
// after Close returns ErrReporterClosed.
func (reporter *Reporter) Emit(event Event) error {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	if reporter.closed {
		return ErrReporterClosed
	}
	if reporter.broken {
		log.Emit(logger.DEBUG, "Dropping %s event for disconnected client\n", event.Type)
		return nil
	}

	frame, err := Encode(event)
	if err != nil {
		return err
	}

	if _, err := reporter.writer.Write(frame); err != nil {
		reporter.broken = true
		log.Emit(logger.DEBUG, "Client disconnected, dropping remaining events: %v\n", err)
		return nil
	}

	reporter.flusher.Flush()
	return nil
}

func (reporter *Reporter) Close() {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	reporter.closed = true
}

// Encode renders the event as an SSE frame: 'data: <json>\n\n'.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n'), nil
}
