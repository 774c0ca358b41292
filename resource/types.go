package resource

import "strconv"

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle int64

func (h Handle) String() string {
	return strconv.FormatInt(int64(h), 10)
}

// Valid reports whether h could have been issued by an Allocator.
func (h Handle) Valid() bool {
	return h > 0
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
// Drop is called exactly once, after the value has been removed from its
// table and every outstanding borrow has been returned.
type Dropper interface {
	Drop()
}
