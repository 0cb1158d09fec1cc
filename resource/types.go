package resource

// Handle is an opaque reference to a native object registered in a Table.
// The low 32 bits index the table slot, the high 32 bits carry the slot's
// generation so a stale handle never resolves to a reused slot.
// Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

// Index returns the 1-based slot index.
func (h Handle) Index() uint32 { return uint32(h) }

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

// EventType identifies a reference lifecycle notification.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a reference lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Rep    uint32
	Type   EventType
}

// Observer receives notifications about reference lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

