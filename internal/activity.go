package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Second * 2
	MAX_TIMER_DURATION time.Duration = time.Second * 5

	RAPID_EVENT_DEBOUNCE_DURATION  time.Duration = time.Millisecond * 500
	RAPID_EVENT_MAX_TIMER_DURATION time.Duration = time.Second * 2
)

type (
	broadcastHandler func() error

	broadcaster interface {
		BroadcastIngestUpdate(id uuid.UUID) error
		BroadcastDownloadUpdate(id uuid.UUID) error
		BroadcastMediaUpdate(id int64) error
		BroadcastReconcileUpdate(pageID int64) error
		BroadcastEditComplete(recordID int64) error
	}

	// eventKey identifies a stream of events about one resource. The ID is
	// either a uuid.UUID or an int64 depending on the event.
	eventKey struct {
		ev event.Event
		id any
	}

	debounce struct {
		wait time.Duration
		max  time.Duration
	}

	// activityService relays events from the bus to the activity socket.
	// Bursts of events about the same resource are collapsed in to a single
	// broadcast, which is delayed by at most the max duration of the debounce.
	activityService struct {
		mutex          sync.Mutex
		broadcaster    broadcaster
		eventBus       event.EventHandler
		standard       debounce
		rapid          debounce
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{
		broadcaster:    broadcaster,
		eventBus:       eventBus,
		standard:       debounce{DEBOUNCE_DURATION, MAX_TIMER_DURATION},
		rapid:          debounce{RAPID_EVENT_DEBOUNCE_DURATION, RAPID_EVENT_MAX_TIMER_DURATION},
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(event.HandlerChannel, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.INGEST_UPDATE, event.INGEST_COMPLETE,
		event.DOWNLOAD_UPDATE, event.DOWNLOAD_PROGRESS, event.DOWNLOAD_COMPLETE,
		event.MEDIA_UPDATE, event.MEDIA_DELETE,
		event.RECONCILE_UPDATE, event.RECONCILE_COMPLETE,
		event.EDIT_COMPLETE)

	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			service.stopTimers()
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	switch ev.Event {
	case event.INGEST_UPDATE, event.INGEST_COMPLETE:
		id, err := payloadAs[uuid.UUID](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.standard, func() error { return service.broadcaster.BroadcastIngestUpdate(id) })
	case event.DOWNLOAD_UPDATE, event.DOWNLOAD_COMPLETE:
		id, err := payloadAs[uuid.UUID](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.standard, func() error { return service.broadcaster.BroadcastDownloadUpdate(id) })
	case event.DOWNLOAD_PROGRESS:
		id, err := payloadAs[uuid.UUID](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.rapid, func() error { return service.broadcaster.BroadcastDownloadUpdate(id) })
	case event.MEDIA_UPDATE, event.MEDIA_DELETE:
		id, err := payloadAs[int64](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.standard, func() error { return service.broadcaster.BroadcastMediaUpdate(id) })
	case event.RECONCILE_UPDATE:
		id, err := payloadAs[int64](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.rapid, func() error { return service.broadcaster.BroadcastReconcileUpdate(id) })
	case event.RECONCILE_COMPLETE:
		id, err := payloadAs[int64](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.standard, func() error { return service.broadcaster.BroadcastReconcileUpdate(id) })
	case event.EDIT_COMPLETE:
		id, err := payloadAs[int64](ev)
		if err != nil {
			return err
		}
		service.schedule(eventKey{ev.Event, id}, service.standard, func() error { return service.broadcaster.BroadcastEditComplete(id) })
	default:
		return fmt.Errorf("unknown event type %s", ev.Event)
	}

	return nil
}

func payloadAs[T any](ev event.HandlerEvent) (T, error) {
	v, ok := ev.Payload.(T)
	if !ok {
		return v, fmt.Errorf("illegal payload %T for event %s", ev.Payload, ev.Event)
	}

	return v, nil
}

// schedule (re)starts the debounce timer for the resource, and starts the
// max timer if one is not already running. Whichever fires first performs
// the broadcast and clears both.
func (service *activityService) schedule(key eventKey, timing debounce, handler broadcastHandler) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	fire := func() { service.broadcast(key, handler) }

	if t, ok := service.debounceTimers[key]; ok {
		t.Stop()
	}
	service.debounceTimers[key] = time.AfterFunc(timing.wait, fire)

	if _, ok := service.maxTimers[key]; !ok {
		service.maxTimers[key] = time.AfterFunc(timing.max, fire)
	}
}

func (service *activityService) broadcast(key eventKey, handler broadcastHandler) {
	service.mutex.Lock()
	_, debouncePending := service.debounceTimers[key]
	_, maxPending := service.maxTimers[key]
	if !debouncePending && !maxPending {
		// Already fired by the other timer
		service.mutex.Unlock()
		return
	}

	if t, ok := service.debounceTimers[key]; ok {
		t.Stop()
		delete(service.debounceTimers, key)
	}
	if t, ok := service.maxTimers[key]; ok {
		t.Stop()
		delete(service.maxTimers, key)
	}
	service.mutex.Unlock()

	if err := handler(); err != nil {
		log.Emit(logger.WARNING, "Broadcast of %s for %v failed: %v\n", key.ev, key.id, err)
	}
}

func (service *activityService) stopTimers() {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	for key, t := range service.debounceTimers {
		t.Stop()
		delete(service.debounceTimers, key)
	}
	for key, t := range service.maxTimers {
		t.Stop()
		delete(service.maxTimers, key)
	}
}
