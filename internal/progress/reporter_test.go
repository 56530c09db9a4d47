package progress_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hbomb79/Mediadesk/internal/progress"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

type brokenWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

type unflushableWriter struct{ http.ResponseWriter }

func TestOpen_WritesHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	_, err := progress.Open(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)
}

func TestOpen_RequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := progress.Open(unflushableWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, progress.ErrFlushUnsupported)
}

func TestEmit_FramesInOrder(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	reporter, err := progress.Open(rec)
	require.NoError(t, err)

	errCount := 0
	require.NoError(t, reporter.Emit(progress.Event{Type: progress.ProgressEvent, Total: 2, Completed: 0, Message: "Starting"}))
	require.NoError(t, reporter.Emit(progress.Event{Type: progress.CompleteEvent, Total: 2, Completed: 2, Errors: &errCount}))
	reporter.Close()

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 2)

	var first, second map[string]any
	require.True(t, strings.HasPrefix(frames[0], "data: "))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &second))

	assert.Equal(t, "progress", first["type"])
	assert.NotContains(t, first, "errors", "progress events do not carry an error count")
	assert.Equal(t, "complete", second["type"])
	assert.EqualValues(t, 0, second["errors"])
	assert.EqualValues(t, 2, second["completed"])
}

func TestEmit_AfterClose(t *testing.T) {
	t.Parallel()

	reporter, err := progress.Open(httptest.NewRecorder())
	require.NoError(t, err)

	reporter.Close()
	assert.ErrorIs(t, reporter.Emit(progress.Event{Type: progress.ProgressEvent}), progress.ErrReporterClosed)
}

func TestEmit_DisconnectedClientIsSilent(t *testing.T) {
	t.Parallel()

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	reporter, err := progress.Open(w)
	require.NoError(t, err)

	assert.NoError(t, reporter.Emit(progress.Event{Type: progress.ProgressEvent}))
	assert.NoError(t, reporter.Emit(progress.Event{Type: progress.CompleteEvent}))
	assert.Equal(t, 1, w.writes, "writes should stop once the client is known to be gone")
}

func TestEncode_SetupFailure(t *testing.T) {
	t.Parallel()

	frame, err := progress.Encode(progress.Event{Type: progress.ErrorEvent, Message: "Error downloading playlist", Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, `data: {"type":"error","total":0,"completed":0,"message":"Error downloading playlist","error":"boom"}`+"\n\n", string(frame))
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := &progress.Recorder{}
	var sink progress.Sink = rec
	require.NoError(t, sink.Emit(progress.Event{Type: progress.ProgressEvent}))
	require.NoError(t, sink.Emit(progress.Event{Type: progress.ErrorEvent}))
	require.NoError(t, sink.Emit(progress.Event{Type: progress.ProgressEvent}))

	assert.Len(t, rec.Events(), 3)
	assert.Len(t, rec.OfType(progress.ProgressEvent), 2)
	assert.Len(t, rec.OfType(progress.CompleteEvent), 0)
}
