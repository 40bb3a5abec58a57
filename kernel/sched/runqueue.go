// Package sched implements the round-robin run queue. Each terminal owns
// one slot which holds the pid of the process currently running on it.
package sched

import "termos/kernel"

const (
	// Slots is the number of run queue slots, one per terminal.
	Slots = 3

	// Uninitialized marks a slot whose terminal has no shell yet.
	Uninitialized = -256
)

var (
	// ErrInvalidSlot is returned for slot indices outside [0, Slots).
	ErrInvalidSlot = &kernel.Error{Module: "sched", Message: "invalid run queue slot"}
)

// Decision is the outcome of a scheduling step.
type Decision struct {
	Slot int
	PID  int

	// Bootstrap is set when the slot is uninitialized and a root shell
	// must be started on its terminal.
	Bootstrap bool
}

// RunQueue holds one pid per slot and the index of the slot that owns the
// CPU.
type RunQueue struct {
	slots    [Slots]int
	current  int
	selected [Slots]uint64
}

// NewRunQueue returns a run queue with every slot uninitialized. The first
// call to Advance selects slot 0.
func NewRunQueue() *RunQueue {
	q := &RunQueue{current: -1}
	for i := range q.slots {
		q.slots[i] = Uninitialized
	}
	return q
}

// Advance moves to the next slot in round-robin order.
func (q *RunQueue) Advance() Decision {
	q.current = (q.current + 1) % Slots
	q.selected[q.current]++

	pid := q.slots[q.current]
	return Decision{Slot: q.current, PID: pid, Bootstrap: pid == Uninitialized}
}

// Current returns the slot that owns the CPU or -1 before the first
// Advance.
func (q *RunQueue) Current() int {
	return q.current
}

// CurrentPID returns the pid in the current slot.
func (q *RunQueue) CurrentPID() int {
	if q.current < 0 {
		return Uninitialized
	}
	return q.slots[q.current]
}

// Set stores pid in slot.
func (q *RunQueue) Set(slot, pid int) *kernel.Error {
	if slot < 0 || slot >= Slots {
		return ErrInvalidSlot
	}
	q.slots[slot] = pid
	return nil
}

// Select makes slot the current slot without advancing. It is used when a
// process is started outside of a timer tick.
func (q *RunQueue) Select(slot int) *kernel.Error {
	if slot < 0 || slot >= Slots {
		return ErrInvalidSlot
	}
	q.current = slot
	return nil
}

// Slot returns the pid stored in slot.
func (q *RunQueue) Slot(slot int) int {
	if slot < 0 || slot >= Slots {
		return Uninitialized
	}
	return q.slots[slot]
}

// Snapshot returns a copy of the slots.
func (q *RunQueue) Snapshot() [Slots]int {
	return q.slots
}

// Selected returns how many times each slot was picked by Advance.
func (q *RunQueue) Selected() [Slots]uint64 {
	return q.selected
}
