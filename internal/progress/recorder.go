package progress

import "sync"

// Recorder is an in-memory Sink which keeps every event emitted to it.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (recorder *Recorder) Emit(event Event) error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	recorder.events = append(recorder.events, event)
	return nil
}

// Events returns a copy of the events recorded so far.
func (recorder *Recorder) Events() []Event {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()

	out := make([]Event, len(recorder.events))
	copy(out, recorder.events)
	return out
}

// OfType returns the recorded events with the type provided.
func (recorder *Recorder) OfType(t EventType) []Event {
	out := make([]Event, 0)
	for _, ev := range recorder.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}

	return out
}
