package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink receives every published event, synchronously and in order
type Sink interface {
	Publish(Event) error
}

// Feed fans committed events out to subscriber channels and sinks.
// Delivery to subscribers never blocks: a full subscriber channel drops the event.
type Feed struct {
	sync.RWMutex
	log   logrus.FieldLogger
	subs  map[int]chan Event
	next  int
	sinks []Sink
}

// NewFeed creates a Feed
func NewFeed(log logrus.FieldLogger) *Feed {
	return &Feed{
		log:  log.WithField("prefix", "kittymarket.events"),
		subs: make(map[int]chan Event),
	}
}

// Subscribe returns a channel of published events and a func that closes it
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	f.Lock()
	defer f.Unlock()

	id := f.next
	f.next++
	c := make(chan Event, buffer)
	f.subs[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			f.Lock()
			defer f.Unlock()
			delete(f.subs, id)
			close(c)
		})
	}
}

// AddSink registers a sink
func (f *Feed) AddSink(s Sink) {
	f.Lock()
	defer f.Unlock()
	f.sinks = append(f.sinks, s)
}

// Publish delivers events in order. Sink errors are logged and do not stop delivery.
func (f *Feed) Publish(evs ...Event) {
	f.RLock()
	defer f.RUnlock()

	for _, e := range evs {
		log := f.log.WithField("kind", e.Kind())
		log.WithField("event", e).Debug("Publishing event")

		for _, s := range f.sinks {
			if err := s.Publish(e); err != nil {
				log.WithError(err).Error("Sink.Publish failed")
			}
		}

		for id, c := range f.subs {
			select {
			case c <- e:
			default:
				log.WithField("subscriber", id).Warn("Subscriber channel full, dropping event")
			}
		}
	}
}

// Recorder is a Sink that keeps every event it receives
type Recorder struct {
	sync.Mutex
	events []Event
}

// Publish implements Sink
func (r *Recorder) Publish(e Event) error {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.Lock()
	defer r.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset forgets the recorded events
func (r *Recorder) Reset() {
	r.Lock()
	defer r.Unlock()
	r.events = nil
}
