package proc

import "termos/kernel"

var (
	// ErrProcessLimit is returned when every non-reserved pid is in use.
	ErrProcessLimit = &kernel.Error{Module: "proc", Message: "process limit reached"}

	// ErrInvalidPID is returned for pids outside the table or for slots
	// that are not in use.
	ErrInvalidPID = &kernel.Error{Module: "proc", Message: "invalid pid"}
)

// Table is the fixed-capacity PCB arena.
type Table struct {
	pcbs       [MaxProcesses]PCB
	used       [MaxProcesses]bool
	generation uint64
}

// AllocRoot (re)initialises the reserved slot of the root shell of term.
// A running root shell is replaced in place.
func (t *Table) AllocRoot(term int, program string) (*PCB, *kernel.Error) {
	if term < 0 || term >= Terminals {
		return nil, ErrInvalidPID
	}
	t.generation++
	t.used[term] = true
	t.pcbs[term].reset(term, NoParent, term, program, t.generation)
	return &t.pcbs[term], nil
}

// Alloc initialises the lowest free non-reserved slot for a child of
// parent. The child inherits the terminal of the root shell at the top of
// its parent chain.
func (t *Table) Alloc(parent int, program string) (*PCB, *kernel.Error) {
	if t.Get(parent) == nil {
		return nil, ErrInvalidPID
	}
	for pid := Terminals; pid < MaxProcesses; pid++ {
		if t.used[pid] {
			continue
		}
		t.generation++
		t.used[pid] = true
		t.pcbs[pid].reset(pid, parent, t.RootOf(parent), program, t.generation)
		return &t.pcbs[pid], nil
	}
	return nil, ErrProcessLimit
}

// Free releases a non-reserved slot. Root shell slots are never freed.
func (t *Table) Free(pid int) *kernel.Error {
	if pid < Terminals || pid >= MaxProcesses || !t.used[pid] {
		return ErrInvalidPID
	}
	t.used[pid] = false
	return nil
}

// Get returns the PCB of pid or nil if the slot is free.
func (t *Table) Get(pid int) *PCB {
	if pid < 0 || pid >= MaxProcesses || !t.used[pid] {
		return nil
	}
	return &t.pcbs[pid]
}

// IsRoot reports whether pid is a root shell slot.
func (t *Table) IsRoot(pid int) bool {
	return pid >= 0 && pid < Terminals
}

// RootOf walks the parent chain of pid up to the root shell and returns
// its pid, which is also the terminal number.
func (t *Table) RootOf(pid int) int {
	for steps := 0; steps < MaxProcesses; steps++ {
		if t.IsRoot(pid) {
			return pid
		}
		p := t.Get(pid)
		if p == nil {
			break
		}
		pid = p.Parent
	}
	return -1
}

// Active returns the pids of every slot in use.
func (t *Table) Active() []int {
	var pids []int
	for pid := 0; pid < MaxProcesses; pid++ {
		if t.used[pid] {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Available returns the number of free non-reserved slots.
func (t *Table) Available() int {
	var n int
	for pid := Terminals; pid < MaxProcesses; pid++ {
		if !t.used[pid] {
			n++
		}
	}
	return n
}
