package interaction

import "pdf-text-overlay/internal/geometry"

// PointerKind is the kind of a document-level pointer event.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerUp
)

func (k PointerKind) String() string {
	switch k {
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	default:
		return "unknown"
	}
}

// PointerEvent is a pointer move or release anywhere in the document, with
// the position relative to the raster's on-screen origin.
type PointerEvent struct {
	Kind   PointerKind
	Screen geometry.Point
}

// Listener receives pointer events.
type Listener func(PointerEvent)

// Bus is the document-level pointer listener registry. Listeners are only
// bound while something needs global pointer tracking, such as a drag.
type Bus struct {
	nextID    uint64
	listeners []busEntry
}

type busEntry struct {
	id uint64
	fn Listener
}

// Subscription is a handle to a bound listener.
type Subscription struct {
	bus *Bus
	id  uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe binds fn until the returned subscription is released.
func (b *Bus) Subscribe(fn Listener) *Subscription {
	b.nextID++
	b.listeners = append(b.listeners, busEntry{id: b.nextID, fn: fn})
	return &Subscription{bus: b, id: b.nextID}
}

// Release unbinds the listener. Calling it more than once has no effect.
func (s *Subscription) Release() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	for i, e := range b.listeners {
		if e.id == s.id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			break
		}
	}
	s.bus = nil
}

// Dispatch delivers ev to every listener bound at the time of the call.
func (b *Bus) Dispatch(ev PointerEvent) {
	snapshot := make([]busEntry, len(b.listeners))
	copy(snapshot, b.listeners)
	for _, e := range snapshot {
		e.fn(ev)
	}
}

// Len returns the number of bound listeners.
func (b *Bus) Len() int { return len(b.listeners) }
