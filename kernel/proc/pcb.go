// Package proc implements the process control blocks and the fixed-size
// table that owns them.
package proc

import (
	"termos/kernel"
	"termos/kernel/gate"
	"termos/kernel/signal"
)

const (
	// MaxProcesses is the number of PCB slots.
	MaxProcesses = 6

	// Terminals is the number of terminals. Pids 0..Terminals-1 are
	// reserved for the root shell of each terminal.
	Terminals = 3

	// MaxFiles is the size of the file descriptor table.
	MaxFiles = 8

	// ArgsSize is the capacity of the argument buffer, terminator
	// included.
	ArgsSize = 128

	// NoParent is the parent pid of a root shell.
	NoParent = -256

	// AlarmTicks is the default number of timer ticks between two ALARM
	// signals: ten seconds at the default timer rate.
	AlarmTicks = 1000

	// StdinFD and StdoutFD are permanently bound to the terminal.
	StdinFD  = 0
	StdoutFD = 1

	kernelStackBase = uint32(0x800000)
	kernelStackSize = uint32(0x2000)
)

var (
	// ErrArgsTooLong is returned when an argument string does not fit the
	// argument buffer.
	ErrArgsTooLong = &kernel.Error{Module: "proc", Message: "argument string too long"}
)

// FileKind selects the file operation variant behind a descriptor.
type FileKind uint8

const (
	KindRegular FileKind = iota
	KindDirectory
	KindRTC
	KindTerminalIn
	KindTerminalOut
)

// String implements fmt.Stringer.
func (k FileKind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindDirectory:
		return "dir"
	case KindRTC:
		return "rtc"
	case KindTerminalIn:
		return "stdin"
	case KindTerminalOut:
		return "stdout"
	default:
		return "?"
	}
}

// Descriptor is one slot of a process's file descriptor table.
type Descriptor struct {
	Kind     FileKind
	Inode    uint32
	Position uint32
	InUse    bool
}

// PCB is the kernel's per-process state.
type PCB struct {
	PID      int
	Parent   int
	Terminal int
	Program  string

	// Generation changes every time the slot is (re)allocated so callers
	// can tell two processes that used the same pid apart.
	Generation uint64

	// SyscallContext is the parent's frame at the time it called
	// execute; halt resumes it.
	SyscallContext gate.Registers

	// SchedContext is the frame saved when the scheduler preempted this
	// process.
	SchedContext gate.Registers

	Files   [MaxFiles]Descriptor
	Signals signal.State

	args    [ArgsSize]byte
	argsLen int

	// VideoMapped is set once the process called vidmap.
	VideoMapped bool
}

func (p *PCB) reset(pid, parent, term int, program string, generation uint64) {
	*p = PCB{
		PID:        pid,
		Parent:     parent,
		Terminal:   term,
		Program:    program,
		Generation: generation,
	}
	p.Files[StdinFD] = Descriptor{Kind: KindTerminalIn, InUse: true}
	p.Files[StdoutFD] = Descriptor{Kind: KindTerminalOut, InUse: true}
	p.Signals.Reset()
}

// KernelStackTop returns the initial kernel ESP of the process.
func (p *PCB) KernelStackTop() uint32 {
	return KernelStackTop(p.PID)
}

// SetArgs stores the argument string of the process.
func (p *PCB) SetArgs(args string) *kernel.Error {
	if len(args) >= ArgsSize {
		return ErrArgsTooLong
	}
	p.args = [ArgsSize]byte{}
	p.argsLen = copy(p.args[:], args)
	return nil
}

// Args returns the argument string of the process.
func (p *PCB) Args() string {
	return string(p.args[:p.argsLen])
}

// AllocFD returns the lowest free descriptor at or above 2.
func (p *PCB) AllocFD() (int, bool) {
	for fd := StdoutFD + 1; fd < MaxFiles; fd++ {
		if !p.Files[fd].InUse {
			return fd, true
		}
	}
	return -1, false
}

// File returns the in-use descriptor fd or nil.
func (p *PCB) File(fd int) *Descriptor {
	if fd < 0 || fd >= MaxFiles || !p.Files[fd].InUse {
		return nil
	}
	return &p.Files[fd]
}

// KernelStackTop returns the initial kernel ESP for pid. Each process owns
// an 8 KiB kernel stack carved downwards from 8 MiB.
func KernelStackTop(pid int) uint32 {
	return kernelStackBase - uint32(pid)*kernelStackSize - 4
}

// PIDFromKernelStack recovers the pid owning the kernel stack that esp
// points into.
func PIDFromKernelStack(esp uint32) int {
	return int((kernelStackBase - esp) / kernelStackSize)
}
