package download

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestService_SweepForgetsOldBatches(t *testing.T) {
	t.Parallel()

	service := NewService(Config{RetentionSeconds: 60}, nil)

	running := newBatch(Request{URL: "https://a"})
	recent := newBatch(Request{URL: "https://b"})
	old := newBatch(Request{URL: "https://c"})
	for _, b := range []*Batch{running, recent, old} {
		service.batches[b.id] = b
	}

	recent.finish(nil)
	old.finish(errors.New("resolve failed"))
	past := time.Now().Add(-2 * time.Minute)
	old.finishedAt = &past

	service.sweep(time.Now())

	assert.NotNil(t, service.Batch(running.id), "running batches are never swept")
	assert.NotNil(t, service.Batch(recent.id))
	assert.Nil(t, service.Batch(old.id))
	assert.Len(t, service.Batches(), 2)
}

func TestBatch_FinishIsIdempotent(t *testing.T) {
	t.Parallel()

	batch := newBatch(Request{URL: "https://a"})
	batch.resolved("title", 2)
	assert.Equal(t, Downloading, batch.State())

	batch.itemFinished(nil)
	batch.itemFinished(errors.New("x"))
	batch.finish(nil)
	batch.finish(errors.New("late"))

	snapshot := batch.Snapshot()
	assert.Equal(t, "DONE", snapshot.State)
	assert.Equal(t, 2, snapshot.Completed)
	assert.Equal(t, 1, snapshot.Errors)
	assert.Empty(t, snapshot.Error)

	select {
	case <-batch.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}
