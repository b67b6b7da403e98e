package eventbus

import (
	"context"
	"sync"

	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventMessage carries transcript updates.
	EventMessage EventType = "message"
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
	// EventStream carries live stream accumulators.
	EventStream EventType = "stream"
	// EventTerminal carries terminal lifecycle and output.
	EventTerminal EventType = "terminal"
	// EventQueue carries approval and user-input queue updates.
	EventQueue EventType = "queue"
	// EventCatalog carries model catalog updates.
	EventCatalog EventType = "catalog"
	// EventConsole carries raw backend output lines.
	EventConsole EventType = "console"
)

// Event represents a UI-facing event emitted by the engine.
type Event struct {
	Type     EventType
	Message  schema.MessageEvent
	Session  schema.SessionEvent
	Stream   schema.StreamEvent
	Terminal schema.TerminalEvent
	Queue    schema.QueueEvent
	Catalog  schema.CatalogEvent
	Console  schema.ConsoleEvent
}

type subscriber struct {
	ch    chan Event
	types map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans engine events out to subscribers. Slow subscribers drop events.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]*subscriber
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]*subscriber),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel. With no types
// the subscriber receives every event.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan Event, b.depth)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[sub.ch] = sub
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count, "types", len(types))
	}
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub.ch)
			b.mu.Unlock()
			close(sub.ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnMessage publishes a transcript event.
func (b *Bus) OnMessage(event schema.MessageEvent) {
	b.publish(Event{Type: EventMessage, Message: event})
}

// OnSession publishes a session event.
func (b *Bus) OnSession(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

// OnStream publishes a stream event.
func (b *Bus) OnStream(event schema.StreamEvent) {
	b.publish(Event{Type: EventStream, Stream: event})
}

// OnTerminal publishes a terminal event.
func (b *Bus) OnTerminal(event schema.TerminalEvent) {
	b.publish(Event{Type: EventTerminal, Terminal: event})
}

// OnQueue publishes a queue event.
func (b *Bus) OnQueue(event schema.QueueEvent) {
	b.publish(Event{Type: EventQueue, Queue: event})
}

// OnCatalog publishes a catalog event.
func (b *Bus) OnCatalog(event schema.CatalogEvent) {
	b.publish(Event{Type: EventCatalog, Catalog: event})
}

// OnConsole publishes console lines.
func (b *Bus) OnConsole(event schema.ConsoleEvent) {
	b.publish(Event{Type: EventConsole, Console: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
