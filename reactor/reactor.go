// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness multiplexer interface for the dispatch loop.

package reactor

// Interest selects which readiness directions a descriptor is watched
// for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// EventType carries the readiness bits reported for a descriptor.
type EventType uint8

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventError
)

// Event is one readiness report.
type Event struct {
	FD   int
	Type EventType
}

// Reactor multiplexes readiness over registered descriptors.
type Reactor interface {
	// Add registers fd with the given interest set.
	Add(fd int, interest Interest) error

	// Modify replaces the interest set of a registered fd.
	Modify(fd int, interest Interest) error

	// Remove unregisters fd.
	Remove(fd int) error

	// Wait blocks up to timeoutMs (-1 blocks indefinitely, 0 polls)
	// and fills events with ready descriptors. Returns the count
	// written.
	Wait(events []Event, timeoutMs int) (int, error)

	// Close releases the multiplexer.
	Close() error
}
