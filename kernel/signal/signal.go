// Package signal implements per-process signal state and the construction of
// the user stack frame that runs a signal handler.
package signal

import "termos/kernel"

// Number identifies a signal.
type Number uint8

const (
	DivZero Number = iota
	Segfault
	Interrupt
	Alarm
	User1

	// Count is the number of signal lines.
	Count = 5
)

var names = [Count]string{"DIV_ZERO", "SEGFAULT", "INTERRUPT", "ALARM", "USER1"}

// String implements fmt.Stringer.
func (n Number) String() string {
	if int(n) < Count {
		return names[n]
	}
	return "UNKNOWN"
}

// ActionKind selects what happens when a signal is delivered.
type ActionKind uint8

const (
	// ActionKill terminates the process.
	ActionKill ActionKind = iota

	// ActionIgnore discards the signal.
	ActionIgnore

	// ActionHandler runs a user handler.
	ActionHandler
)

// Action is the disposition of a signal.
type Action struct {
	Kind    ActionKind
	Handler uint32
}

// DefaultAction returns the disposition a new process starts with: the
// fault and interrupt signals kill, the rest are ignored.
func DefaultAction(n Number) Action {
	if n <= Interrupt {
		return Action{Kind: ActionKill}
	}
	return Action{Kind: ActionIgnore}
}

var (
	// ErrInvalidSignal is returned for signal numbers outside [0, Count).
	ErrInvalidSignal = &kernel.Error{Module: "signal", Message: "invalid signal number"}
)

// State holds the pending and masked bits and the dispositions of one
// process.
type State struct {
	pending uint8
	masked  uint8
	actions [Count]Action
}

// Reset restores the default dispositions and clears every pending and
// masked bit.
func (s *State) Reset() {
	s.pending, s.masked = 0, 0
	for n := Number(0); n < Count; n++ {
		s.actions[n] = DefaultAction(n)
	}
}

// Raise marks n as pending.
func (s *State) Raise(n Number) *kernel.Error {
	if n >= Count {
		return ErrInvalidSignal
	}
	s.pending |= 1 << n
	return nil
}

// Pending reports whether n is pending.
func (s *State) Pending(n Number) bool {
	return n < Count && s.pending&(1<<n) != 0
}

// Masked reports whether n is masked.
func (s *State) Masked(n Number) bool {
	return n < Count && s.masked&(1<<n) != 0
}

// Next picks the lowest-numbered pending signal that is not masked and
// clears its pending bit.
func (s *State) Next() (Number, bool) {
	for n := Number(0); n < Count; n++ {
		if bit := uint8(1) << n; s.pending&bit != 0 && s.masked&bit == 0 {
			s.pending &^= bit
			return n, true
		}
	}
	return 0, false
}

// Mask blocks delivery of n until ClearMask is called.
func (s *State) Mask(n Number) {
	if n < Count {
		s.masked |= 1 << n
	}
}

// ClearMask unblocks every signal.
func (s *State) ClearMask() {
	s.masked = 0
}

// SetHandler installs a user handler for n. A zero address restores the
// default disposition.
func (s *State) SetHandler(n Number, addr uint32) *kernel.Error {
	if n >= Count {
		return ErrInvalidSignal
	}
	if addr == 0 {
		s.actions[n] = DefaultAction(n)
		return nil
	}
	s.actions[n] = Action{Kind: ActionHandler, Handler: addr}
	return nil
}

// Action returns the disposition of n.
func (s *State) Action(n Number) Action {
	if n >= Count {
		return Action{Kind: ActionIgnore}
	}
	return s.actions[n]
}
