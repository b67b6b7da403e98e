package core

import "pkt.systems/cxconsole/schema"

// EventSink receives engine notifications. Calls happen outside the engine lock,
// in the order the underlying state changes were applied.
type EventSink interface {
	OnMessage(event schema.MessageEvent)
	OnSession(event schema.SessionEvent)
	OnStream(event schema.StreamEvent)
	OnTerminal(event schema.TerminalEvent)
	OnQueue(event schema.QueueEvent)
	OnCatalog(event schema.CatalogEvent)
	OnConsole(event schema.ConsoleEvent)
}

// outbox collects notifications while the engine lock is held.
type outbox struct {
	pending []func(EventSink)
}

func (o *outbox) message(event schema.MessageEvent) {
	o.pending = append(o.pending, func(s EventSink) { s.OnMessage(event) })
}

func (o *outbox) session(info schema.SessionInfo) {
	o.pending = append(o.pending, func(s EventSink) { s.OnSession(schema.SessionEvent{Session: info}) })
}

func (o *outbox) stream(event schema.StreamEvent) {
	o.pending = append(o.pending, func(s EventSink) { s.OnStream(event) })
}

func (o *outbox) terminal(event schema.TerminalEvent) {
	o.pending = append(o.pending, func(s EventSink) { s.OnTerminal(event) })
}

func (o *outbox) queue(event schema.QueueEvent) {
	o.pending = append(o.pending, func(s EventSink) { s.OnQueue(event) })
}

func (o *outbox) catalog(snapshot schema.CatalogSnapshot) {
	o.pending = append(o.pending, func(s EventSink) { s.OnCatalog(schema.CatalogEvent{Catalog: snapshot}) })
}

func (o *outbox) console(lines []string) {
	o.pending = append(o.pending, func(s EventSink) { s.OnConsole(schema.ConsoleEvent{Lines: lines}) })
}

func (o *outbox) flush(sink EventSink) {
	if sink == nil {
		o.pending = nil
		return
	}
	for _, fn := range o.pending {
		fn(sink)
	}
	o.pending = nil
}
