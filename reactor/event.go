// Package reactor implements cyclone's Looper: a per-thread (per
// goroutine, in Go terms) readiness-based event loop that registers
// file descriptors and timers and dispatches read/write callbacks
// through a platform-abstracted netpoll.Poller.
package reactor

// EventID is a stable handle to a channel, valid until the channel is
// deleted. The low 20 bits are the channel table slot index; the high
// 12 bits are a generation counter, bumped on every delete, so a stale
// id surviving past a delete+register cycle is rejected instead of
// silently addressing a reused slot.
type EventID uint32

const (
	slotBits       = 20
	slotMask       = 1<<slotBits - 1
	generationMask = ^uint32(0) >> slotBits

	// InvalidEventID is returned by failed registrations and is never
	// a valid handle.
	InvalidEventID EventID = EventID(slotMask) | EventID(generationMask)<<slotBits
)

func makeEventID(slot int, generation uint32) EventID {
	return EventID(uint32(slot)&slotMask | (generation&generationMask)<<slotBits)
}

func (id EventID) slot() int          { return int(id) & slotMask }
func (id EventID) generation() uint32 { return uint32(id) >> slotBits }

// Interest is the subset of {Read, Write} the loop is watching for a
// channel. Its bit values match netpoll.Read/netpoll.Write exactly so
// it converts to netpoll.Interest with a plain cast.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
)

func (i Interest) has(bit Interest) bool { return i&bit != 0 }
