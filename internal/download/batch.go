package download

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/extract"
)

type BatchState int

const (
	Resolving BatchState = iota
	Downloading
	Finalizing
	Done
	Failed
)

func (s BatchState) String() string {
	switch s {
	case Resolving:
		return "RESOLVING"
	case Downloading:
		return "DOWNLOADING"
	case Finalizing:
		return "FINALIZING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}

	return "UNKNOWN"
}

func (s BatchState) terminal() bool { return s == Done || s == Failed }

type (
	// Request describes a URL to download. When Playlist is set the
	// extractor is asked to enumerate every entry of the playlist the
	// URL refers to, otherwise only the single item is downloaded.
	Request struct {
		URL      string
		Format   extract.Format
		Playlist bool
	}

	// Batch tracks the lifecycle of a single invocation of the download
	// pipeline. It is safe for concurrent use: the pipeline mutates it while
	// the API reads snapshots of it.
	Batch struct {
		mutex      sync.Mutex
		id         uuid.UUID
		request    Request
		state      BatchState
		title      string
		total      int
		completed  int
		errors     int
		current    string
		lastError  string
		startedAt  time.Time
		finishedAt *time.Time
		done       chan struct{}
	}

	// Snapshot is a point-in-time copy of a batch, suitable
	// for serialising.
	Snapshot struct {
		ID         uuid.UUID  `json:"id"`
		URL        string     `json:"url"`
		Format     string     `json:"format"`
		Playlist   bool       `json:"playlist"`
		State      string     `json:"state"`
		Title      string     `json:"title"`
		Total      int        `json:"total"`
		Completed  int        `json:"completed"`
		Errors     int        `json:"errors"`
		Current    string     `json:"current,omitempty"`
		Error      string     `json:"error,omitempty"`
		StartedAt  time.Time  `json:"startedAt"`
		FinishedAt *time.Time `json:"finishedAt,omitempty"`
	}
)

func newBatch(request Request) *Batch {
	return &Batch{
		id:        uuid.New(),
		request:   request,
		state:     Resolving,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (batch *Batch) ID() uuid.UUID { return batch.id }

// Done returns a channel which is closed once the batch
// has reached a terminal state.
func (batch *Batch) Done() <-chan struct{} { return batch.done }

func (batch *Batch) State() BatchState {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	return batch.state
}

func (batch *Batch) Snapshot() Snapshot {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	return Snapshot{
		ID:         batch.id,
		URL:        batch.request.URL,
		Format:     batch.request.Format.String(),
		Playlist:   batch.request.Playlist,
		State:      batch.state.String(),
		Title:      batch.title,
		Total:      batch.total,
		Completed:  batch.completed,
		Errors:     batch.errors,
		Current:    batch.current,
		Error:      batch.lastError,
		StartedAt:  batch.startedAt,
		FinishedAt: batch.finishedAt,
	}
}

func (batch *Batch) resolved(title string, total int) {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	batch.title = title
	batch.total = total
	batch.state = Downloading
}

func (batch *Batch) itemStarted(title string) {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	batch.current = title
}

func (batch *Batch) itemFinished(err error) {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	batch.completed++
	if err != nil {
		batch.errors++
	}
}

func (batch *Batch) setState(state BatchState) {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	batch.state = state
}

// finish moves the batch to a terminal state and releases anybody
// waiting on Done. A nil error means the batch completed.
func (batch *Batch) finish(err error) {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	if batch.state.terminal() {
		return
	}

	now := time.Now()
	batch.finishedAt = &now
	batch.current = ""
	if err != nil {
		batch.state = Failed
		batch.lastError = err.Error()
	} else {
		batch.state = Done
	}

	close(batch.done)
}

func (batch *Batch) finishedBefore(cutoff time.Time) bool {
	batch.mutex.Lock()
	defer batch.mutex.Unlock()

	return batch.state.terminal() && batch.finishedAt != nil && batch.finishedAt.Before(cutoff)
}
