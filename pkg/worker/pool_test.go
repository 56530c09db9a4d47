package worker_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/hbomb79/Mediadesk/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func TestWorkerPool_WakeupRunsTaskUntilIdle(t *testing.T) {
	var pending atomic.Int32
	var processed atomic.Int32
	task := func(worker.Worker) (bool, error) {
		if pending.Load() == 0 {
			return false, nil
		}

		pending.Add(-1)
		processed.Add(1)
		return true, nil
	}

	pool := worker.NewWorkerPool()
	require.NoError(t, pool.PushWorker(worker.NewWorker("a", task), worker.NewWorker("b", task)))
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Close)

	pending.Store(5)
	require.NoError(t, pool.WakeupWorkers())

	assert.Eventually(t, func() bool { return processed.Load() == 5 }, time.Second, 10*time.Millisecond)
}

func TestWorkerPool_Lifecycle(t *testing.T) {
	pool := worker.NewWorkerPool()
	assert.ErrorIs(t, pool.WakeupWorkers(), worker.ErrPoolNotStarted)

	w := worker.NewWorker("only", func(worker.Worker) (bool, error) { return false, nil })
	require.NoError(t, pool.PushWorker(w))
	require.NoError(t, pool.Start())
	assert.ErrorIs(t, pool.Start(), worker.ErrPoolStarted)
	assert.ErrorIs(t, pool.PushWorker(w), worker.ErrPoolStarted)

	pool.Close()
	assert.Equal(t, worker.FINISHED, w.Status())
}
