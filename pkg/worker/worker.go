package worker

import (
	"sync/atomic"

	"github.com/hbomb79/Mediadesk/pkg/logger"
)

var log = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int32

	// WorkerTask is executed repeatedly by a worker for as long as it
	// reports that it performed some work. Once it returns false the
	// worker sleeps until it is woken by its pool.
	WorkerTask func(w Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WorkerWakeupChan
		Label() string
		Close()
	}

	taskWorker struct {
		label      string
		task       WorkerTask
		wakeupChan WorkerWakeupChan
		status     atomic.Int32
	}
)

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

func NewWorker(label string, task WorkerTask) *taskWorker {
	worker := &taskWorker{label: label, task: task, wakeupChan: make(WorkerWakeupChan, 1)}
	worker.setStatus(SLEEPING)

	return worker
}

// Start runs the task of the worker until the task reports there is no
// work left, then sleeps until woken. Start returns once the wakeup
// channel of the worker is closed.
func (worker *taskWorker) Start() {
	log.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	for {
		worker.setStatus(WORKING)
		for {
			workDone, err := worker.task(worker)
			if err != nil {
				log.Emit(logger.ERROR, "Worker %s task reported an error: %v\n", worker.label, err)
			}
			if !workDone {
				break
			}
		}

		if !worker.sleep() {
			break
		}
	}

	worker.setStatus(FINISHED)
	log.Emit(logger.STOP, "Worker %s has stopped\n", worker.label)
}

func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.status.Load())
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the wakeup channel of the worker. A task currently being
// executed is not interrupted.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

func (worker *taskWorker) Label() string {
	return worker.label
}

// sleep blocks until the wakeup channel is signalled, returning false if
// the channel was closed and the worker should exit.
func (worker *taskWorker) sleep() bool {
	worker.setStatus(SLEEPING)
	_, isAlive := <-worker.wakeupChan

	return isAlive
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.status.Store(int32(status))
}
